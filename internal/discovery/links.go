package discovery

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type link struct {
	url   string
	inNav bool
}

type document struct {
	title string
	links []link
}

// parseDocument tokenizes an HTML page and returns its title plus the
// distinct same-origin links it contains, in first-seen order. A link is
// marked inNav when any occurrence sits inside <nav> or <header>.
func parseDocument(body []byte, base *url.URL, pageURL string) document {
	page, err := url.Parse(pageURL)
	if err != nil {
		page = base
	}

	var (
		doc      document
		seen     = make(map[string]int)
		navDepth int
		inTitle  bool
		title    strings.Builder
	)

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			doc.title = strings.Join(strings.Fields(title.String()), " ")
			return doc

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch tag {
			case "nav", "header":
				if tt == html.StartTagToken {
					navDepth++
				}
			case "title":
				inTitle = tt == html.StartTagToken && title.Len() == 0
			case "a":
				if !hasAttr {
					continue
				}
				href := attr(z, "href")
				u, ok := resolveLink(base, page, href)
				if !ok {
					continue
				}
				if i, dup := seen[u]; dup {
					doc.links[i].inNav = doc.links[i].inNav || navDepth > 0
					continue
				}
				seen[u] = len(doc.links)
				doc.links = append(doc.links, link{url: u, inNav: navDepth > 0})
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "nav", "header":
				if navDepth > 0 {
					navDepth--
				}
			case "title":
				inTitle = false
			}

		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
			}
		}
	}
}

func attr(z *html.Tokenizer, key string) string {
	for {
		k, v, more := z.TagAttr()
		if string(k) == key {
			return string(v)
		}
		if !more {
			return ""
		}
	}
}

// resolveLink resolves href against page and returns its canonical form
// when it is an http(s) link on the same site as base.
func resolveLink(base, page *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := page.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !SameOrigin(u.Host, base.Host) {
		return "", false
	}
	return canonical(base, u), true
}

// canonical rewrites a same-site URL onto base's scheme and host, drops the
// fragment, and trims a trailing slash from non-root paths so that
// "/about/" and "/about" are one candidate.
func canonical(base, u *url.URL) string {
	c := *u
	c.Scheme = base.Scheme
	c.Host = strings.ToLower(base.Host)
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	if c.Path == "" {
		c.Path = "/"
	}
	if len(c.Path) > 1 {
		c.Path = strings.TrimRight(c.Path, "/")
		if c.Path == "" {
			c.Path = "/"
		}
	}
	c.RawPath = ""
	return c.String()
}
