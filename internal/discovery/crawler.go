// Package discovery walks a site's link graph to produce the candidate
// pages triage chooses from.
package discovery

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
	"github.com/belivan/MaxantAgency-sub002/internal/resilience"
)

// ErrSiteUnreachable is returned when the root page cannot be fetched or
// answers with a status >= 400.
var ErrSiteUnreachable = eris.New("discovery: site unreachable")

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; SiteAuditBot/1.0)"
	batchSize        = 5
	maxBodyBytes     = 1 << 20
	maxSitemapBytes  = 2 << 20
)

// Config controls crawling behavior.
type Config struct {
	FetchTimeout      time.Duration
	RequestsPerSecond float64
	Burst             int
	ExcludePaths      []string
	SeedSitemap       bool
	UserAgent         string
}

// Result is the outcome of one discovery walk.
type Result struct {
	// Pages are in discovery order; Pages[0] is the root.
	Pages         []model.CandidatePage
	Block         BlockType
	SitemapSeeded int
	// Truncated is set when ctx ended the walk before the queue drained.
	// Pages queued but never fetched keep Reachable=true and no status.
	Truncated bool
}

// Crawler discovers same-origin pages breadth-first.
type Crawler struct {
	http        *http.Client
	matcher     *PathMatcher
	limiter     *rate.Limiter
	policy      resilience.Policy
	userAgent   string
	seedSitemap bool
}

// NewCrawler creates a Crawler. Every fetch goes through policy with
// cfg.FetchTimeout as its per-attempt timeout.
func NewCrawler(cfg Config, policy resilience.Policy) *Crawler {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = batchSize
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	if cfg.FetchTimeout > 0 {
		policy = policy.WithTimeout(cfg.FetchTimeout)
	}
	policy.ShouldRetry = resilience.IsTransient
	if policy.OnRetry == nil {
		policy = policy.WithLogger("http", "discovery.fetch")
	}

	return &Crawler{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		matcher:     NewPathMatcher(cfg.ExcludePaths),
		limiter:     rate.NewLimiter(limit, burst),
		policy:      policy,
		userAgent:   ua,
		seedSitemap: cfg.SeedSitemap,
	}
}

type crawlItem struct {
	url   string
	depth int
}

type fetchResult struct {
	status   int
	finalURL string
	header   http.Header
	body     []byte
	isHTML   bool
}

// Discover crawls from rootURL up to maxDepth link hops, recording at most
// maxPages candidates. Pages that fail to load are kept with
// Reachable=false; only a failing root is fatal. Once the root is in,
// a done ctx stops the walk and returns what was found with Truncated set.
func (c *Crawler) Discover(ctx context.Context, rootURL string, maxDepth, maxPages int) (*Result, error) {
	normalized, err := NormalizeURL(rootURL)
	if err != nil {
		return nil, eris.Wrapf(ErrSiteUnreachable, "parse %q: %v", rootURL, err)
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	rootRes, err := c.fetch(ctx, normalized)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, eris.Wrapf(ErrSiteUnreachable, "%s: root fetch timed out", normalized)
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "discovery: root fetch")
		}
		return nil, eris.Wrapf(ErrSiteUnreachable, "%s: %v", normalized, err)
	}
	if rootRes.status >= http.StatusBadRequest {
		block := detectBlock(rootRes.status, rootRes.header, rootRes.body)
		if block != BlockNone {
			return nil, eris.Wrapf(ErrSiteUnreachable, "%s: status %d (%s)", normalized, rootRes.status, block)
		}
		return nil, eris.Wrapf(ErrSiteUnreachable, "%s: status %d", normalized, rootRes.status)
	}

	// Same-origin checks are made against where the root actually landed.
	base, err := url.Parse(rootRes.finalURL)
	if err != nil {
		base, _ = url.Parse(normalized) //nolint:errcheck // normalized already parsed once
	}
	rootKey := canonical(base, base)

	w := &walk{
		base:     base,
		maxDepth: maxDepth,
		maxPages: maxPages,
		matcher:  c.matcher,
		nodes:    make(map[string]*model.CandidatePage),
	}
	w.add(rootKey, "", 0)

	result := &Result{Block: detectBlock(rootRes.status, rootRes.header, rootRes.body)}
	queue := w.apply(crawlItem{url: rootKey, depth: 0}, rootRes, nil)

	if c.seedSitemap {
		for _, su := range c.fetchSitemapURLs(ctx, base) {
			if w.full() {
				break
			}
			if w.add(su, "sitemap", 1) {
				queue = append(queue, crawlItem{url: su, depth: 1})
				result.SitemapSeeded++
			}
		}
	}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			result.Truncated = true
			break
		}

		n := min(batchSize, len(queue))
		batch := queue[:n]
		queue = queue[n:]

		results := make([]*fetchResult, n)
		errs := make([]error, n)

		// Fresh errgroup per batch so the derived context survives between batches.
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(batchSize)
		for i, item := range batch {
			g.Go(func() error {
				results[i], errs[i] = c.fetch(gCtx, item.url)
				return nil
			})
		}
		_ = g.Wait()

		// Apply in queue order so the walk is deterministic.
		for i, item := range batch {
			if errs[i] != nil && ctx.Err() != nil {
				result.Truncated = true
				continue
			}
			queue = append(queue, w.apply(item, results[i], errs[i])...)
		}
	}

	result.Pages = w.pages()

	zap.L().Debug("discovery: crawl complete",
		zap.String("root", rootKey),
		zap.Int("candidates", len(result.Pages)),
		zap.Int("sitemap_seeded", result.SitemapSeeded),
		zap.String("block", string(result.Block)),
		zap.Bool("truncated", result.Truncated),
	)
	return result, nil
}

// walk holds BFS state. It is only touched from the Discover goroutine.
type walk struct {
	base     *url.URL
	maxDepth int
	maxPages int
	matcher  *PathMatcher
	nodes    map[string]*model.CandidatePage
	order    []string
}

func (w *walk) full() bool { return len(w.order) >= w.maxPages }

// add records a new candidate; it reports false when the URL is known,
// excluded, or the ceiling is reached.
func (w *walk) add(u, from string, depth int) bool {
	if _, ok := w.nodes[u]; ok || w.full() {
		return false
	}
	if depth > 0 && w.matcher.IsExcluded(u) {
		return false
	}
	w.nodes[u] = &model.CandidatePage{URL: u, DiscoveredFrom: from, Depth: depth, Reachable: true}
	w.order = append(w.order, u)
	return true
}

// apply folds one fetch outcome into the graph and returns newly queued items.
func (w *walk) apply(item crawlItem, res *fetchResult, err error) []crawlItem {
	page := w.nodes[item.url]
	if err != nil {
		page.Reachable = false
		var te *resilience.TransientError
		if errors.As(err, &te) {
			page.StatusCode = te.StatusCode
		}
		zap.L().Debug("discovery: page unreachable", zap.String("url", item.url), zap.Error(err))
		return nil
	}

	page.StatusCode = res.status
	if res.status >= http.StatusBadRequest {
		page.Reachable = false
		return nil
	}
	if !res.isHTML {
		return nil
	}

	doc := parseDocument(res.body, w.base, item.url)
	page.Title = doc.title
	if item.depth >= w.maxDepth {
		return nil
	}

	var next []crawlItem
	for _, l := range doc.links {
		if l.url == item.url {
			continue
		}
		if known, ok := w.nodes[l.url]; ok {
			known.InboundLinks++
			known.InNavigation = known.InNavigation || l.inNav
			continue
		}
		if w.add(l.url, item.url, item.depth+1) {
			added := w.nodes[l.url]
			added.InboundLinks = 1
			added.InNavigation = l.inNav
			next = append(next, crawlItem{url: l.url, depth: item.depth + 1})
		}
	}
	return next
}

func (w *walk) pages() []model.CandidatePage {
	out := make([]model.CandidatePage, 0, len(w.order))
	for i, u := range w.order {
		p := *w.nodes[u]
		p.Importance = Importance(p, i == 0)
		out = append(out, p)
	}
	return out
}

var importantKeywords = []string{"contact", "service", "about", "pricing", "product"}

// Importance scores a candidate: 2 per inbound link, +5 in navigation, +4
// for a high-value path keyword, -3 per depth level, +100 for the root.
func Importance(p model.CandidatePage, isRoot bool) float64 {
	score := 2*float64(p.InboundLinks) - 3*float64(p.Depth)
	if p.InNavigation {
		score += 5
	}
	if u, err := url.Parse(p.URL); err == nil {
		lower := strings.ToLower(u.Path)
		for _, kw := range importantKeywords {
			if strings.Contains(lower, kw) {
				score += 4
				break
			}
		}
	}
	if isRoot {
		score += 100
	}
	return score
}

func (c *Crawler) fetch(ctx context.Context, rawURL string) (*fetchResult, error) {
	return resilience.DoVal(ctx, c.policy, func(ctx context.Context) (*fetchResult, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "execute request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) && resp.StatusCode != http.StatusServiceUnavailable {
			return nil, resilience.NewTransientError(eris.Errorf("fetch %s: status %d", rawURL, resp.StatusCode), resp.StatusCode)
		}

		ct := strings.ToLower(resp.Header.Get("Content-Type"))
		return &fetchResult{
			status:   resp.StatusCode,
			finalURL: resp.Request.URL.String(),
			header:   resp.Header,
			body:     body,
			isHTML:   ct == "" || strings.Contains(ct, "html"),
		}, nil
	})
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// fetchSitemapURLs returns canonical same-origin URLs from /sitemap.xml.
// Sitemap index files are not followed.
func (c *Crawler) fetchSitemapURLs(ctx context.Context, base *url.URL) []string {
	sitemapURL := base.Scheme + "://" + base.Host + "/sitemap.xml"
	res, err := c.fetch(ctx, sitemapURL)
	if err != nil || res.status != http.StatusOK {
		return nil
	}

	body := res.body
	if len(body) > maxSitemapBytes {
		body = body[:maxSitemapBytes]
	}
	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil
	}

	var urls []string
	for _, entry := range set.URLs {
		if u, ok := resolveLink(base, base, strings.TrimSpace(entry.Loc)); ok {
			urls = append(urls, u)
		}
	}
	return urls
}

// NormalizeURL adds a scheme when missing and ensures a non-empty path.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("empty url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", eris.Errorf("no host in %q", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	return u.String(), nil
}

// SameOrigin reports whether two hosts name the same site, tolerating a
// leading "www.".
func SameOrigin(a, b string) bool {
	return stripWWW(a) == stripWWW(b)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
