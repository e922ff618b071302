package capture

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Extraction is everything derived from one page's rendered HTML.
type Extraction struct {
	Meta           model.PageMeta
	Text           string
	WordCount      int
	Technologies   []model.Technology
	SocialProfiles []model.SocialProfile
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

var (
	phonePattern     = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\b\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`)
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	copyrightPattern = regexp.MustCompile(`(?i)(?:©|\(c\)|copyright)[^0-9]{0,20}((?:19|20)\d{2})(?:\s*[-–]\s*((?:19|20)\d{2}))?`)
)

var ctaPhrases = []string{
	"contact us", "get a quote", "request a quote", "free quote", "free estimate",
	"call now", "call us", "book", "schedule", "get started", "sign up",
	"buy now", "shop now", "order now", "request", "subscribe", "learn more",
}

var landmarkRoles = map[string]string{
	"main":          "main",
	"navigation":    "nav",
	"banner":        "header",
	"contentinfo":   "footer",
	"complementary": "aside",
	"search":        "search",
}

var landmarkTags = map[atom.Atom]string{
	atom.Main:   "main",
	atom.Nav:    "nav",
	atom.Header: "header",
	atom.Footer: "footer",
	atom.Aside:  "aside",
}

// Extract parses rendered HTML into page signals. pageURL decides which
// links are internal. Every slice in the result is non-nil.
func Extract(pageURL, rawHTML string) Extraction {
	ext := Extraction{
		Meta: model.PageMeta{
			H1:            []string{},
			H2:            []string{},
			Headings:      []model.Heading{},
			Landmarks:     []string{},
			CallsToAction: []string{},
		},
		Technologies:   []model.Technology{},
		SocialProfiles: []model.SocialProfile{},
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ext
	}
	base, _ := url.Parse(pageURL) //nolint:errcheck // nil base treats every absolute link as external

	w := &extractor{
		ext:      &ext,
		base:     base,
		labelFor: collectLabelTargets(doc),
		techs:    make(map[string]model.Technology),
		socials:  make(map[string]bool),
		ctas:     make(map[string]bool),
		marks:    make(map[string]bool),
	}
	w.walk(doc, false)

	visible := strings.Join(strings.Fields(w.text.String()), " ")
	ext.WordCount = len(strings.Fields(visible))
	ext.Meta.HasPhone = ext.Meta.HasPhone || phonePattern.MatchString(visible)
	ext.Meta.HasEmail = ext.Meta.HasEmail || emailPattern.MatchString(visible)
	ext.Meta.CopyrightYear = copyrightYear(visible)

	for _, t := range detectTechnologies(rawHTML) {
		w.addTech(t)
	}
	for _, t := range w.techs {
		ext.Technologies = append(ext.Technologies, t)
	}
	sort.Slice(ext.Technologies, func(i, j int) bool { return ext.Technologies[i].Name < ext.Technologies[j].Name })

	ext.Text = visible
	if md, err := mdConverter.ConvertString(rawHTML, converter.WithDomain(pageURL)); err == nil && strings.TrimSpace(md) != "" {
		ext.Text = strings.TrimSpace(md)
	}
	return ext
}

type extractor struct {
	ext      *Extraction
	base     *url.URL
	labelFor map[string]bool
	techs    map[string]model.Technology
	socials  map[string]bool
	ctas     map[string]bool
	marks    map[string]bool
	text     strings.Builder
}

func (w *extractor) walk(n *html.Node, inLabel bool) {
	switch n.Type {
	case html.TextNode:
		w.text.WriteString(n.Data)
		w.text.WriteByte(' ')
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
		w.element(n, inLabel)
		if n.DataAtom == atom.Title {
			return
		}
		if n.DataAtom == atom.Label {
			inLabel = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, inLabel)
	}
}

func (w *extractor) element(n *html.Node, inLabel bool) {
	meta := &w.ext.Meta

	if role := strings.ToLower(attr(n, "role")); role != "" {
		if mark, ok := landmarkRoles[role]; ok {
			w.addLandmark(mark)
		}
	}
	if mark, ok := landmarkTags[n.DataAtom]; ok {
		w.addLandmark(mark)
	}

	switch n.DataAtom {
	case atom.Html:
		meta.Lang = strings.TrimSpace(attr(n, "lang"))

	case atom.Title:
		if meta.Title == "" {
			meta.Title = nodeText(n)
		}

	case atom.Meta:
		name := strings.ToLower(attr(n, "name"))
		content := strings.TrimSpace(attr(n, "content"))
		switch name {
		case "description":
			meta.Description = content
		case "viewport":
			meta.Viewport = content
		case "robots":
			meta.Robots = strings.ToLower(content)
		case "generator":
			if t, ok := generatorTech(content); ok {
				w.addTech(t)
			}
		}
		if strings.HasPrefix(strings.ToLower(attr(n, "property")), "og:") {
			meta.HasOpenGraph = true
		}

	case atom.Link:
		for _, rel := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
			if rel == "canonical" {
				meta.Canonical = strings.TrimSpace(attr(n, "href"))
			}
		}

	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level, _ := strconv.Atoi(n.Data[1:]) //nolint:errcheck // atom guarantees h1..h6
		text := nodeText(n)
		meta.Headings = append(meta.Headings, model.Heading{Level: level, Text: text})
		switch level {
		case 1:
			meta.H1 = append(meta.H1, text)
		case 2:
			meta.H2 = append(meta.H2, text)
		}

	case atom.Img:
		meta.ImageCount++
		if hasAttr(n, "alt") {
			meta.ImagesWithAlt++
		}

	case atom.A:
		w.anchor(n)

	case atom.Button:
		w.addCTA(nodeText(n))

	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "submit", "button":
			w.addCTA(attr(n, "value"))
			return
		case "hidden", "image", "reset":
			return
		}
		w.formInput(n, inLabel)

	case atom.Select, atom.Textarea:
		w.formInput(n, inLabel)
	}
}

func (w *extractor) anchor(n *html.Node) {
	meta := &w.ext.Meta
	href := strings.TrimSpace(attr(n, "href"))
	text := nodeText(n)

	if text == "" && attr(n, "aria-label") == "" && attr(n, "title") == "" && !hasImageWithAlt(n) {
		meta.EmptyLinks++
	}
	w.addCTA(text)

	lower := strings.ToLower(href)
	switch {
	case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:"):
		return
	case strings.HasPrefix(lower, "mailto:"):
		meta.HasEmail = true
		return
	case strings.HasPrefix(lower, "tel:"):
		meta.HasPhone = true
		return
	}

	u, err := url.Parse(href)
	if err != nil {
		return
	}
	if w.base != nil {
		u = w.base.ResolveReference(u)
	}
	if u.Host == "" || (w.base != nil && sameSite(u.Host, w.base.Host)) {
		meta.InternalLinks++
		return
	}
	meta.ExternalLinks++

	if platform, ok := socialPlatform(u); ok && !w.socials[platform] {
		w.socials[platform] = true
		clean := *u
		clean.Fragment = ""
		w.ext.SocialProfiles = append(w.ext.SocialProfiles, model.SocialProfile{Platform: platform, URL: clean.String()})
	}
}

func (w *extractor) formInput(n *html.Node, inLabel bool) {
	w.ext.Meta.FormInputs++
	id := attr(n, "id")
	labeled := inLabel ||
		(id != "" && w.labelFor[id]) ||
		attr(n, "aria-label") != "" ||
		attr(n, "aria-labelledby") != "" ||
		attr(n, "title") != ""
	if !labeled {
		w.ext.Meta.UnlabeledInputs++
	}
}

func (w *extractor) addLandmark(name string) {
	if !w.marks[name] {
		w.marks[name] = true
		w.ext.Meta.Landmarks = append(w.ext.Meta.Landmarks, name)
	}
}

func (w *extractor) addTech(t model.Technology) {
	if _, ok := w.techs[t.Name]; !ok {
		w.techs[t.Name] = t
	}
}

func (w *extractor) addCTA(text string) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || len(text) > 60 {
		return
	}
	lower := strings.ToLower(text)
	if w.ctas[lower] || len(w.ext.Meta.CallsToAction) >= 20 {
		return
	}
	for _, phrase := range ctaPhrases {
		if strings.Contains(lower, phrase) {
			w.ctas[lower] = true
			w.ext.Meta.CallsToAction = append(w.ext.Meta.CallsToAction, text)
			return
		}
	}
}

func collectLabelTargets(doc *html.Node) map[string]bool {
	targets := make(map[string]bool)
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Label {
			if id := attr(n, "for"); id != "" {
				targets[id] = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return targets
}

func copyrightYear(text string) int {
	year := 0
	for _, m := range copyrightPattern.FindAllStringSubmatch(text, -1) {
		for _, g := range m[1:] {
			if y, err := strconv.Atoi(g); err == nil && y > year {
				year = y
			}
		}
	}
	return year
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// nodeText returns the whitespace-collapsed text under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
			return
		}
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			return
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			visit(cc)
		}
	}
	visit(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasImageWithAlt(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Img && strings.TrimSpace(attr(c, "alt")) != "" {
			return true
		}
		if hasImageWithAlt(c) {
			return true
		}
	}
	return false
}

func sameSite(a, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") == strings.TrimPrefix(strings.ToLower(b), "www.")
}
