package capture

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

const richPage = `<!doctype html>
<html lang="en-US">
<head>
  <title> Acme Plumbing | Springfield </title>
  <meta name="description" content="Family plumbers since 1998.">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <meta name="robots" content="INDEX, FOLLOW">
  <meta name="generator" content="WordPress 6.4.2">
  <meta property="og:title" content="Acme">
  <link rel="canonical" href="https://acme.test/">
  <link rel="stylesheet" href="https://fonts.googleapis.com/css?family=Roboto">
  <script src="https://www.googletagmanager.com/gtag/js?id=G-1"></script>
  <script>var hidden = "not visible text";</script>
</head>
<body>
  <header><nav>
    <a href="/">Home</a>
    <a href="https://www.acme.test/services">Services</a>
    <a href="/contact"><img src="/i.png" alt="Contact"></a>
    <a href="/x"></a>
  </nav></header>
  <main>
    <h1>Springfield Plumbing</h1>
    <h3>Skipped a level</h3>
    <h2>Emergency repairs</h2>
    <p>Call (555) 123-4567 any time.</p>
    <img src="/a.png" alt="Van">
    <img src="/b.png">
    <a href="https://acme.test/quote" class="btn">Get a Quote</a>
    <form>
      <label for="name">Name</label><input id="name" type="text">
      <label>Email <input type="email"></label>
      <input type="tel">
      <input type="hidden" name="token">
      <textarea aria-label="Message"></textarea>
      <button type="submit">Request service</button>
    </form>
  </main>
  <footer>
    <a href="mailto:hi@acme.test">Email us</a>
    <a href="https://www.facebook.com/acmeplumbing">Facebook</a>
    <a href="https://www.facebook.com/sharer/sharer.php?u=x">Share</a>
    <a href="https://instagram.com/acme_plumbing/">Instagram</a>
    <a href="https://twitter.com/intent/tweet?text=hi">Tweet</a>
    <a href="https://example.org/partner">Partner</a>
    <p>© 2019 - 2023 Acme Plumbing LLC</p>
  </footer>
</body>
</html>`

func TestExtract_Meta(t *testing.T) {
	ext := Extract("https://acme.test/", richPage)
	m := ext.Meta

	assert.Equal(t, "Acme Plumbing | Springfield", m.Title)
	assert.Equal(t, "Family plumbers since 1998.", m.Description)
	assert.Equal(t, "https://acme.test/", m.Canonical)
	assert.Contains(t, m.Viewport, "width=device-width")
	assert.Equal(t, "en-US", m.Lang)
	assert.Equal(t, "index, follow", m.Robots)
	assert.True(t, m.HasOpenGraph)

	assert.Equal(t, []string{"Springfield Plumbing"}, m.H1)
	assert.Equal(t, []string{"Emergency repairs"}, m.H2)
	assert.Equal(t, []model.Heading{
		{Level: 1, Text: "Springfield Plumbing"},
		{Level: 3, Text: "Skipped a level"},
		{Level: 2, Text: "Emergency repairs"},
	}, m.Headings)

	assert.Equal(t, 3, m.ImageCount)
	assert.Equal(t, 2, m.ImagesWithAlt)
	assert.Equal(t, 1, m.EmptyLinks)
	assert.Equal(t, 5, m.InternalLinks)
	assert.Equal(t, 5, m.ExternalLinks)

	assert.Equal(t, 4, m.FormInputs)
	assert.Equal(t, 1, m.UnlabeledInputs)
	assert.Equal(t, []string{"header", "nav", "main", "footer"}, m.Landmarks)

	assert.True(t, m.HasPhone)
	assert.True(t, m.HasEmail)
	assert.Equal(t, 2023, m.CopyrightYear)
	assert.Equal(t, []string{"Get a Quote", "Request service"}, m.CallsToAction)
}

func TestExtract_TechnologiesAndSocial(t *testing.T) {
	ext := Extract("https://acme.test/", richPage)

	names := make([]string, len(ext.Technologies))
	for i, tech := range ext.Technologies {
		names[i] = tech.Name
	}
	assert.Equal(t, []string{"Google Analytics", "Google Fonts", "WordPress"}, names)

	require.Len(t, ext.SocialProfiles, 2)
	assert.Equal(t, model.SocialProfile{Platform: "facebook", URL: "https://www.facebook.com/acmeplumbing"}, ext.SocialProfiles[0])
	assert.Equal(t, "instagram", ext.SocialProfiles[1].Platform)
}

func TestExtract_TextExcludesScripts(t *testing.T) {
	ext := Extract("https://acme.test/", richPage)
	assert.NotContains(t, ext.Text, "not visible text")
	assert.Contains(t, ext.Text, "Emergency repairs")
	assert.Greater(t, ext.WordCount, 20)
}

func TestExtract_EmptyDocumentHasNonNilSlices(t *testing.T) {
	ext := Extract("https://acme.test/", "")
	assert.NotNil(t, ext.Meta.H1)
	assert.NotNil(t, ext.Meta.H2)
	assert.NotNil(t, ext.Meta.Headings)
	assert.NotNil(t, ext.Meta.Landmarks)
	assert.NotNil(t, ext.Meta.CallsToAction)
	assert.NotNil(t, ext.Technologies)
	assert.NotNil(t, ext.SocialProfiles)
	assert.Equal(t, 0, ext.WordCount)
	assert.Empty(t, ext.Text)
}

func TestGeneratorTech(t *testing.T) {
	tech, ok := generatorTech("Wix.com Website Builder")
	require.True(t, ok)
	assert.Equal(t, "Wix.com Website Builder", tech.Name)

	tech, ok = generatorTech("Joomla! 4.2 - Open Source")
	require.True(t, ok)
	assert.Equal(t, "Joomla!", tech.Name)

	_, ok = generatorTech("  ")
	assert.False(t, ok)
}

func TestSocialPlatform(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://x.com/acme", "x", true},
		{"https://m.facebook.com/acme", "facebook", true},
		{"https://www.linkedin.com/company/acme", "linkedin", true},
		{"https://youtu.be/abc", "youtube", true},
		{"https://www.tiktok.com/@acme", "tiktok", true},
		{"https://pinterest.com/acme/", "pinterest", true},
		{"https://www.facebook.com/", "", false},
		{"https://www.linkedin.com/shareArticle?url=x", "", false},
		{"https://www.youtube.com/embed/abc", "", false},
		{"https://example.com/acme", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			got, ok := socialPlatform(u)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
