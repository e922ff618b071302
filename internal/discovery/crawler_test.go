package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/resilience"
)

func testPolicy() resilience.Policy {
	return resilience.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/": `<html><head><title>Acme  Plumbing</title></head><body>
			<header><nav><a href="/about">About</a><a href="/services/">Services</a><a href="/blog/post">Blog</a></nav></header>
			<a href="/contact">Contact</a>
			<a href="/about/">About again</a>
			<a href="/pricing.pdf">Prices</a>
			<a href="http://other.example/x">Elsewhere</a>
			<a href="#top">Top</a>
			<a href="mailto:hi@acme.test">Mail</a>
			<a href="/missing">Gone</a>
		</body></html>`,
		"/about":    `<html><head><title>About</title></head><body><a href="/team">Team</a><a href="/contact">Contact</a></body></html>`,
		"/services": `<html><head><title>Services</title></head><body><a href="/">Home</a></body></html>`,
		"/contact":  `<html><head><title>Contact</title></head><body></body></html>`,
		"/team":     `<html><head><title>Team</title></head><body><a href="/deep">Deep</a></body></html>`,
		"/sitemap-only": `<html><head><title>Hidden</title></head><body></body></html>`,
	}

	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0"?><urlset><url><loc>%s/sitemap-only</loc></url><url><loc>%s/about</loc></url></urlset>`, ts.URL, ts.URL)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func byURL(pages []model.CandidatePage) map[string]model.CandidatePage {
	out := make(map[string]model.CandidatePage, len(pages))
	for _, p := range pages {
		out[p.URL] = p
	}
	return out
}

func TestDiscover_WalksSite(t *testing.T) {
	ts := newTestSite(t)
	c := NewCrawler(Config{SeedSitemap: true}, testPolicy())

	res, err := c.Discover(context.Background(), ts.URL, 2, 50)
	require.NoError(t, err)
	require.NotEmpty(t, res.Pages)

	root := res.Pages[0]
	assert.Equal(t, ts.URL+"/", root.URL)
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, "Acme Plumbing", root.Title)
	assert.Greater(t, root.Importance, 100.0)

	pages := byURL(res.Pages)

	about := pages[ts.URL+"/about"]
	assert.True(t, about.InNavigation)
	assert.Equal(t, 1, about.InboundLinks)
	assert.Equal(t, 1, about.Depth)
	assert.Equal(t, "About", about.Title)

	contact := pages[ts.URL+"/contact"]
	assert.False(t, contact.InNavigation)
	assert.Equal(t, 2, contact.InboundLinks)

	services := pages[ts.URL+"/services"]
	assert.True(t, services.InNavigation)

	missing := pages[ts.URL+"/missing"]
	assert.False(t, missing.Reachable)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	team := pages[ts.URL+"/team"]
	assert.Equal(t, 2, team.Depth)
	assert.Equal(t, ts.URL+"/about", team.DiscoveredFrom)

	seeded := pages[ts.URL+"/sitemap-only"]
	assert.Equal(t, "sitemap", seeded.DiscoveredFrom)
	assert.Equal(t, 1, res.SitemapSeeded)

	assert.NotContains(t, pages, ts.URL+"/deep", "links past max depth are not followed")
	assert.NotContains(t, pages, ts.URL+"/blog/post")
	assert.NotContains(t, pages, ts.URL+"/pricing.pdf")
	assert.NotContains(t, pages, "http://other.example/x")
	assert.Equal(t, BlockNone, res.Block)
}

func TestDiscover_Deterministic(t *testing.T) {
	ts := newTestSite(t)
	c := NewCrawler(Config{SeedSitemap: true}, testPolicy())

	first, err := c.Discover(context.Background(), ts.URL, 2, 50)
	require.NoError(t, err)
	second, err := c.Discover(context.Background(), ts.URL, 2, 50)
	require.NoError(t, err)
	assert.Equal(t, first.Pages, second.Pages)
}

func TestDiscover_MaxPagesCeiling(t *testing.T) {
	ts := newTestSite(t)
	c := NewCrawler(Config{}, testPolicy())

	res, err := c.Discover(context.Background(), ts.URL, 3, 3)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 3)
	assert.Equal(t, ts.URL+"/", res.Pages[0].URL)
}

func TestDiscover_RootOnlyAtDepthZero(t *testing.T) {
	ts := newTestSite(t)
	c := NewCrawler(Config{}, testPolicy())

	res, err := c.Discover(context.Background(), ts.URL, 0, 50)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 1)
}

func TestDiscover_UnreachableRoot(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"cloudflare challenge", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("cf-ray", "abc")
			w.WriteHeader(http.StatusForbidden)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := NewCrawler(Config{}, testPolicy())
			_, err := c.Discover(context.Background(), ts.URL, 2, 10)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrSiteUnreachable))
		})
	}
}

func TestDiscover_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	c := NewCrawler(Config{}, testPolicy())
	_, err := c.Discover(context.Background(), addr, 2, 10)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSiteUnreachable))
}

// hangingSite serves a root linking to n pages that stall until the
// client gives up.
func hangingSite(t *testing.T, n int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			select {
			case <-r.Context().Done():
			case <-time.After(3 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Slow Co</title></head><body><nav>`)
		for i := range n {
			fmt.Fprintf(w, `<a href="/page-%d">Page %d</a>`, i, i)
		}
		fmt.Fprint(w, `</nav></body></html>`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestDiscover_DeadlineKeepsFoundPages(t *testing.T) {
	ts := hangingSite(t, 7)
	c := NewCrawler(Config{}, testPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	res, err := c.Discover(ctx, ts.URL, 2, 50)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	require.Len(t, res.Pages, 8)
	assert.Equal(t, ts.URL+"/", res.Pages[0].URL)
	assert.Equal(t, "Slow Co", res.Pages[0].Title)
	for _, p := range res.Pages[1:] {
		assert.True(t, p.Reachable, p.URL)
		assert.Zero(t, p.StatusCode, p.URL)
	}
}

func TestDiscover_RootDeadlineIsUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewCrawler(Config{}, testPolicy()).Discover(ctx, ts.URL, 2, 10)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSiteUnreachable))
}

func TestDiscover_FlagsCaptcha(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div class="g-recaptcha"></div></body></html>`)
	}))
	defer ts.Close()

	c := NewCrawler(Config{}, testPolicy())
	res, err := c.Discover(context.Background(), ts.URL, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, BlockCaptcha, res.Block)
}

func TestImportance(t *testing.T) {
	tests := []struct {
		name   string
		page   model.CandidatePage
		isRoot bool
		want   float64
	}{
		{"root", model.CandidatePage{URL: "https://a.test/"}, true, 100},
		{"nav contact", model.CandidatePage{URL: "https://a.test/contact", Depth: 1, InboundLinks: 3, InNavigation: true}, false, 6 + 5 + 4 - 3},
		{"deep plain", model.CandidatePage{URL: "https://a.test/x/y", Depth: 3, InboundLinks: 1}, false, 2 - 9},
		{"keyword in subpath", model.CandidatePage{URL: "https://a.test/our-services/roofing", Depth: 2}, false, 4 - 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Importance(tt.page, tt.isRoot), 1e-9)
		})
	}
}

func TestResolveLink(t *testing.T) {
	base, _ := url.Parse("https://example.com/")
	page, _ := url.Parse("https://example.com/services/")

	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/about", "https://example.com/about", true},
		{"https://www.example.com/about/", "https://example.com/about", true},
		{"http://example.com/x#frag", "https://example.com/x", true},
		{"roofing", "https://example.com/services/roofing", true},
		{"?page=2", "https://example.com/services?page=2", true},
		{"https://other.com/", "", false},
		{"#top", "", false},
		{"tel:+15551234", "", false},
		{"javascript:void(0)", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := resolveLink(base, page, tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	got, err := NormalizeURL("acme.test")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.test/", got)

	got, err = NormalizeURL(" http://acme.test/about#x ")
	require.NoError(t, err)
	assert.Equal(t, "http://acme.test/about", got)

	_, err = NormalizeURL("")
	assert.Error(t, err)
}

func TestPathMatcher(t *testing.T) {
	m := NewPathMatcher(nil)
	assert.True(t, m.IsExcluded("https://a.test/blog/2024/post"))
	assert.True(t, m.IsExcluded("https://a.test/Careers/jobs"))
	assert.True(t, m.IsExcluded("https://a.test/menu.pdf"))
	assert.False(t, m.IsExcluded("https://a.test/about"))
	assert.False(t, m.IsExcluded("https://a.test/blogroll"))

	none := NewPathMatcher([]string{})
	assert.False(t, none.IsExcluded("https://a.test/blog/post"))
	assert.Empty(t, none.Patterns())
}

func TestDetectBlock(t *testing.T) {
	cf := http.Header{}
	cf.Set("cf-ray", "1")
	assert.Equal(t, BlockCloudflare, detectBlock(http.StatusForbidden, cf, nil))
	assert.Equal(t, BlockCloudflare, detectBlock(http.StatusOK, http.Header{}, []byte("Checking your browser before accessing")))
	assert.Equal(t, BlockJSShell, detectBlock(http.StatusOK, http.Header{}, []byte(`<noscript>Enable JavaScript</noscript>`)))
	assert.Equal(t, BlockNone, detectBlock(http.StatusOK, http.Header{}, []byte("<html><body>hello</body></html>")))
}
