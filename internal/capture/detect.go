package capture

import (
	"net/url"
	"strings"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

type techMarker struct {
	marker   string
	name     string
	category string
}

// techMarkers are matched case-insensitively against the raw HTML, which
// covers script src, link href and inline bootstrap snippets.
var techMarkers = []techMarker{
	{"/wp-content/", "WordPress", "cms"},
	{"/wp-includes/", "WordPress", "cms"},
	{"cdn.shopify.com", "Shopify", "ecommerce"},
	{"static.wixstatic.com", "Wix", "cms"},
	{"squarespace.com", "Squarespace", "cms"},
	{"assets.website-files.com", "Webflow", "cms"},
	{"img1.wsimg.com", "GoDaddy Website Builder", "cms"},
	{"/_next/", "Next.js", "framework"},
	{"googletagmanager.com/gtm.js", "Google Tag Manager", "tag-manager"},
	{"googletagmanager.com/gtag/js", "Google Analytics", "analytics"},
	{"google-analytics.com", "Google Analytics", "analytics"},
	{"connect.facebook.net", "Meta Pixel", "analytics"},
	{"static.hotjar.com", "Hotjar", "analytics"},
	{"js.hs-scripts.com", "HubSpot", "marketing"},
	{"assets.calendly.com", "Calendly", "scheduling"},
	{"js.stripe.com", "Stripe", "payments"},
	{"www.google.com/recaptcha", "reCAPTCHA", "security"},
	{"fonts.googleapis.com", "Google Fonts", "font"},
	{"jquery", "jQuery", "javascript-library"},
	{"bootstrap.min.css", "Bootstrap", "ui-framework"},
	{"bootstrap.min.js", "Bootstrap", "ui-framework"},
}

func detectTechnologies(rawHTML string) []model.Technology {
	lower := strings.ToLower(rawHTML)
	var out []model.Technology
	for _, m := range techMarkers {
		if strings.Contains(lower, m.marker) {
			out = append(out, model.Technology{Name: m.name, Category: m.category})
		}
	}
	return out
}

// generatorTech maps a <meta name="generator"> value to a technology,
// dropping any version suffix ("WordPress 6.4.2" → "WordPress").
func generatorTech(content string) (model.Technology, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return model.Technology{}, false
	}
	var name []string
	for _, f := range fields {
		if f[0] >= '0' && f[0] <= '9' {
			break
		}
		name = append(name, strings.TrimSuffix(f, ";"))
	}
	if len(name) == 0 {
		return model.Technology{}, false
	}
	return model.Technology{Name: strings.Join(name, " "), Category: "cms"}, true
}

var socialHosts = map[string]string{
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"instagram.com": "instagram",
	"twitter.com":   "x",
	"x.com":         "x",
	"linkedin.com":  "linkedin",
	"youtube.com":   "youtube",
	"youtu.be":      "youtube",
	"tiktok.com":    "tiktok",
	"pinterest.com": "pinterest",
}

// shareMarkers identify share buttons and embeds, which are not profiles.
var shareMarkers = []string{"sharer", "/share", "intent/tweet", "/plugins/", "/dialog/", "/embed/", "shareArticle"}

func socialPlatform(u *url.URL) (string, bool) {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	platform, ok := socialHosts[host]
	if !ok {
		return "", false
	}
	p := u.Path
	if strings.Trim(p, "/") == "" {
		return "", false
	}
	full := p + "?" + u.RawQuery
	for _, marker := range shareMarkers {
		if strings.Contains(full, marker) {
			return "", false
		}
	}
	return platform, true
}
