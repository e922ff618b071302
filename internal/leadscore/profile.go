package leadscore

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile describes the agency's ideal customer. It is loaded from YAML.
type Profile struct {
	TargetIndustries    []string   `yaml:"target_industries"`
	AdjacentIndustries  []string   `yaml:"adjacent_industries"`
	PremiumTechnologies []string   `yaml:"premium_technologies"`
	IdealEmployees      SizeRange  `yaml:"ideal_employees"`
	Tiers               Thresholds `yaml:"tiers"`
}

// SizeRange is an inclusive employee-count range.
type SizeRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Thresholds are the minimum priorities of the hot and warm tiers.
type Thresholds struct {
	Hot  float64 `yaml:"hot" mapstructure:"hot"`
	Warm float64 `yaml:"warm" mapstructure:"warm"`
}

// DefaultProfile returns the built-in profile.
func DefaultProfile() Profile {
	return Profile{
		TargetIndustries: []string{
			"restaurant", "dental", "legal", "law", "plumbing", "hvac",
			"roofing", "salon", "fitness", "real estate", "medical",
		},
		AdjacentIndustries: []string{
			"retail", "construction", "landscaping", "automotive", "accounting", "veterinary",
		},
		PremiumTechnologies: []string{
			"Shopify", "HubSpot", "Salesforce", "Squarespace", "Wix",
			"WordPress", "Google Tag Manager", "Facebook Pixel", "Calendly",
		},
		IdealEmployees: SizeRange{Min: 5, Max: 50},
		Tiers:          Thresholds{Hot: 70, Warm: 40},
	}
}

// LoadProfile reads a YAML profile from path. Fields left empty fall back
// to DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, eris.Wrapf(err, "leadscore: read profile %s", path)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, eris.Wrap(err, "leadscore: parse profile")
	}
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) withDefaults() Profile {
	def := DefaultProfile()
	if len(p.TargetIndustries) == 0 {
		p.TargetIndustries = def.TargetIndustries
	}
	if len(p.AdjacentIndustries) == 0 {
		p.AdjacentIndustries = def.AdjacentIndustries
	}
	if len(p.PremiumTechnologies) == 0 {
		p.PremiumTechnologies = def.PremiumTechnologies
	}
	if p.IdealEmployees == (SizeRange{}) {
		p.IdealEmployees = def.IdealEmployees
	}
	if p.Tiers == (Thresholds{}) {
		p.Tiers = def.Tiers
	}
	return p
}

func (p Profile) validate() error {
	if p.IdealEmployees.Min > p.IdealEmployees.Max {
		return eris.Errorf("leadscore: ideal_employees min %d exceeds max %d", p.IdealEmployees.Min, p.IdealEmployees.Max)
	}
	if p.Tiers.Warm > p.Tiers.Hot {
		return eris.Errorf("leadscore: warm threshold %.1f exceeds hot %.1f", p.Tiers.Warm, p.Tiers.Hot)
	}
	return nil
}

func containsFold(list []string, s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	for _, item := range list {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" && (s == item || strings.Contains(s, item)) {
			return true
		}
	}
	return false
}
