package model

import "time"

// CandidatePage is a URL found during discovery with its link-graph position.
type CandidatePage struct {
	URL            string  `json:"url"`
	DiscoveredFrom string  `json:"discovered_from,omitempty"`
	Title          string  `json:"title,omitempty"`
	Depth          int     `json:"depth"`
	InboundLinks   int     `json:"inbound_links"`
	InNavigation   bool    `json:"in_navigation"`
	Reachable      bool    `json:"reachable"`
	StatusCode     int     `json:"status_code,omitempty"`
	Importance     float64 `json:"importance"`
}

// SelectionSource identifies how a page was selected for capture.
type SelectionSource string

const (
	SelectedByAI        SelectionSource = "ai"
	SelectedByHeuristic SelectionSource = "heuristic"
)

// SelectedPage is a candidate chosen by triage.
type SelectedPage struct {
	CandidatePage
	Reason     string          `json:"reason,omitempty"`
	SelectedBy SelectionSource `json:"selected_by"`
}

// Heading is one entry of a page's heading outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// PageMeta holds the structured signals extracted from a rendered page.
// Slices are always non-nil after extraction.
type PageMeta struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Canonical        string    `json:"canonical"`
	Viewport         string    `json:"viewport"`
	Lang             string    `json:"lang"`
	Robots           string    `json:"robots"`
	HasOpenGraph     bool      `json:"has_open_graph"`
	H1               []string  `json:"h1"`
	H2               []string  `json:"h2"`
	Headings         []Heading `json:"headings"`
	ImageCount       int       `json:"image_count"`
	ImagesWithAlt    int       `json:"images_with_alt"`
	InternalLinks    int       `json:"internal_links"`
	ExternalLinks    int       `json:"external_links"`
	EmptyLinks       int       `json:"empty_links"`
	FormInputs       int       `json:"form_inputs"`
	UnlabeledInputs  int       `json:"unlabeled_inputs"`
	Landmarks        []string  `json:"landmarks"`
	HasPhone         bool      `json:"has_phone"`
	HasEmail         bool      `json:"has_email"`
	CopyrightYear    int       `json:"copyright_year,omitempty"`
	CallsToAction    []string  `json:"calls_to_action"`
}

// HasLandmark reports whether the page declares the named landmark.
func (m PageMeta) HasLandmark(name string) bool {
	for _, l := range m.Landmarks {
		if l == name {
			return true
		}
	}
	return false
}

// Technology is a detected CMS, framework, or third-party service.
type Technology struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// SocialProfile is an outbound link to a social network profile.
type SocialProfile struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// PageCapture is the rendered result of one selected page. Captures are
// created once by the capture stage and never mutated afterwards.
type PageCapture struct {
	URL                  string          `json:"url"`
	FinalURL             string          `json:"final_url"`
	StatusCode           int             `json:"status_code"`
	IsRoot               bool            `json:"is_root"`
	DesktopScreenshotRef string          `json:"desktop_screenshot_ref,omitempty"`
	MobileScreenshotRef  string          `json:"mobile_screenshot_ref,omitempty"`
	DesktopScreenshot    []byte          `json:"-"`
	MobileScreenshot     []byte          `json:"-"`
	Text                 string          `json:"-"`
	WordCount            int             `json:"word_count"`
	Meta                 PageMeta        `json:"meta"`
	Technologies         []Technology    `json:"technologies"`
	SocialProfiles       []SocialProfile `json:"social_profiles"`
	LoadTime             time.Duration   `json:"load_time"`
}

// IsHTTPS reports whether the final URL was served over TLS.
func (c *PageCapture) IsHTTPS() bool {
	u := c.FinalURL
	if u == "" {
		u = c.URL
	}
	return len(u) >= 8 && u[:8] == "https://"
}

// CaptureSummary is the persisted view of a capture.
type CaptureSummary struct {
	URL                  string `json:"url"`
	StatusCode           int    `json:"status_code"`
	DesktopScreenshotRef string `json:"desktop_screenshot_ref,omitempty"`
	MobileScreenshotRef  string `json:"mobile_screenshot_ref,omitempty"`
	WordCount            int    `json:"word_count"`
}

// Summary returns the persisted view of the capture.
func (c *PageCapture) Summary() CaptureSummary {
	return CaptureSummary{
		URL:                  c.URL,
		StatusCode:           c.StatusCode,
		DesktopScreenshotRef: c.DesktopScreenshotRef,
		MobileScreenshotRef:  c.MobileScreenshotRef,
		WordCount:            c.WordCount,
	}
}
