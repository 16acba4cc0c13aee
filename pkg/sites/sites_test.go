package sites

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

const nlProfileHTML = `<html><head>
<meta name="description" content="Meta omschrijving">
</head><body>
<div id="profile" data-id="L123456">
  <nav><a href="/nl/bedrijf/utrecht/L123456/bakkerij-jansen/"><meta content="4"></a></nav>
  <div class="yp-container--lg">
    <div class="grid lg:grid-cols-11">
      <div class="profile__main">
        <h1 itemprop="name"> Bakkerij   Jansen </h1>
        <a data-ta="PhoneButtonClick" data-tc="DETAIL" href="tel:030-1234567">Bel</a>
        <span data-yext="street">Oudegracht 1</span>
        <span data-yext="postal-code">3511 AA</span>
        <span data-yext="city">Utrecht</span>
        <div data-ta="WebsiteActionClick" data-js-value="https://bakkerijjansen.nl"></div>
        <div data-ta="EmailActionClick" data-tc="SEARCH" data-js-value="info@bakkerijjansen.nl"></div>
      </div>
    </div>
  </div>
</div>
<input id="toggle-box__description"><div class="toggle-box__content">
  Vers brood   elke dag. Bel ons. Meer info >>
</div>
<div class="gallery__column"><img class="gallery__item" src="https://img/1.jpg"><img class="gallery__item" src="https://img/2.jpg"></div>
<div id="economic-data"><h3 class="tab__title">Bedrijfsgegevens</h3>
  <ul id="economic-data-list"><li><span class="font-semibold">KvK</span> 12345678</li></ul>
</div>
<div class="tab__content"><h3 class="tab__title">Sociale Media</h3>
  <div class="social-media-wrap"><a title="Facebook" href="https://fb.com/jansen">f</a></div>
</div>
<div class="tab__content"><h3 class="tab__title">Certificeringen</h3>
  <ul class="flex flex-wrap gap-2"><li><span>SVH</span></li></ul>
</div>
<div class="tab__content"><h3 class="tab__title">Leeg</h3></div>
<div class="competitors-list">
  <a class="competitor" data-title="Bakker &quot;De Molen&quot;" href="/nl/bedrijf/utrecht/L999/">
    <span class="competitor__phone">030-7654321</span>
  </a>
</div>
</body></html>`

const esProfileHTML = `<html><head>
<link rel="canonical" href="https://www.paginasamarillas.es/f/madrid/fontaneria-lopez_123456789_000000001.html">
<script>var ctx = {"activity":"Fontaneros","customerMail":"info@lopez.es","phone":"+34911000000","latitude":"40.4168","longitude":"-3.7038"};</script>
</head><body>
<section class="data-contact">
  <div class="text-center"><h1 itemprop="name">Fontanería López <span class="localidad">Madrid</span></h1></div>
  <div class="detalles-contacto"><div><div class="content"><span class="telephone"><b>911 222 333</b></span></div></div></div>
  <span class="address" itemprop="address">
    <span itemprop="streetAddress">Calle Mayor 1</span>
    <span itemprop="postalCode">28013</span>
    <span itemprop="addressLocality">Madrid</span>
  </span>
  <a class="sitio-web" rel="noopener nofollow" itemprop="url" href="https://lopez.es">web</a>
</section>
<section class="data-info">
  <p data-yext="desc">Fontanería <b>urgente</b> 24h.<br>Presupuesto   sin compromiso.</p>
</section>
<div id="videos_y_fotos"><div class="col-12"><div class="container">
  <img class="galeria-imagenes" src="https://img/a.jpg">
</div></div></div>
<div class="info-adicional"><ul><li>Parking</li><li> Wifi </li></ul></div>
</body></html>`

func mustSite(t *testing.T, key string) Site {
	t.Helper()
	s, err := New(key, Options{})
	require.NoError(t, err)
	return s
}

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestNew_UnknownCountry(t *testing.T) {
	_, err := New("de", Options{})
	assert.ErrorIs(t, err, utils.ErrConfigValidation)

	s, err := New(" NL ", Options{})
	require.NoError(t, err)
	assert.Equal(t, KeyNL, s.Key())
}

func TestBatchNamesAndListingURLs(t *testing.T) {
	nl, es := mustSite(t, KeyNL), mustSite(t, KeyES)

	tests := []struct {
		name      string
		site      Site
		query     models.ListingQuery
		batch     string
		secondURL string
	}{
		{"nl keyword", nl, models.ListingQuery{Keyword: "bakker"}, "bakker", "https://www.goudengids.nl/nl/zoeken/bakker/2"},
		{"nl region", nl, models.ListingQuery{Keyword: "bakker", Region: "utrecht"}, "bakker_utrecht", "https://www.goudengids.nl/nl/zoeken/bakker/utrecht/2"},
		{"es ignores region", es, models.ListingQuery{Keyword: "fontaneros", Region: "madrid"}, "es_fontaneros",
			"https://www.paginasamarillas.es/search/fontaneros/all-ma/all-pr/all-is/all-ci/all-ba/all-pu/all-nc/2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.batch, tt.site.BatchName(tt.query))
			assert.Equal(t, tt.secondURL, tt.site.ListingURL(tt.query, 2))
		})
	}
	assert.Equal(t, 20, nl.PageSize())
	assert.Equal(t, 30, es.PageSize())
}

func TestParseCount(t *testing.T) {
	nl, es := mustSite(t, KeyNL), mustSite(t, KeyES)

	n, ok := nl.ParseCount(doc(t, `<div class="result-info__count"><span class="count">1.247 resultaten</span></div>`))
	assert.True(t, ok)
	assert.Equal(t, 1247, n)

	n, ok = es.ParseCount(doc(t, `<span class="h1">47 resultados</span>`))
	assert.True(t, ok)
	assert.Equal(t, 47, n)

	_, ok = nl.ParseCount(doc(t, `<div class="result-info__count"></div>`))
	assert.False(t, ok, "absent count element")

	_, ok = es.ParseCount(doc(t, `<span class="h1">geen</span>`))
	assert.False(t, ok, "count without digits")
}

func TestParseEndpoints(t *testing.T) {
	nl := mustSite(t, KeyNL)
	got := nl.ParseEndpoints(doc(t, `<div id="results-box"><div class="relative"><ol class="result-items">
		<li class="result-item" data-href="/nl/bedrijf/a/"></li>
		<li class="result-item"></li>
		<li class="result-item" data-href="/nl/bedrijf/b/"></li>
	</ol></div></div>`))
	assert.Equal(t, []string{"https://www.goudengids.nl/nl/bedrijf/a/", "https://www.goudengids.nl/nl/bedrijf/b/"}, got)

	es := mustSite(t, KeyES)
	got = es.ParseEndpoints(doc(t, `<div class="bloque-central"><div class="central"><div itemscope>
		<a data-omniclick="name" href="https://www.paginasamarillas.es/f/madrid/x_1_2.html">x</a>
		<a data-omniclick="phone" href="tel:1">p</a>
	</div></div></div>`))
	assert.Equal(t, []string{"https://www.paginasamarillas.es/f/madrid/x_1_2.html"}, got)

	assert.Empty(t, nl.ParseEndpoints(doc(t, `<html></html>`)))
}

func TestExtractNL(t *testing.T) {
	rec, failure := mustSite(t, KeyNL).Extract(nlProfileHTML)
	require.Nil(t, failure)
	require.NotNil(t, rec)

	assert.Equal(t, nlColumns, rec.Keys())
	assert.NotEqual(t, models.Unavailable, rec.Value("uuid"))
	assert.Equal(t, "L123456", rec.Value("business_id"))
	assert.Equal(t, "Bakkerij Jansen", rec.Value("business_name"))
	assert.Equal(t, "https://www.goudengids.nl/nl/bedrijf/utrecht/L123456/bakkerij-jansen/", rec.Value("crawled_url"))
	assert.Equal(t, "030-1234567", rec.Value("phone"))
	assert.Equal(t, "Oudegracht 1, 3511 AA Utrecht", rec.Value("address"))
	assert.Equal(t, "https://bakkerijjansen.nl", rec.Value("business_url"))
	assert.Equal(t, "info@bakkerijjansen.nl", rec.Value("email"))
	assert.Equal(t, "Vers brood elke dag.", rec.Value("description"))
	assert.Equal(t, "https://img/1.jpg, https://img/2.jpg", rec.Value("business_images"))

	var misc map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Value("miscellaneous_info")), &misc))
	assert.Contains(t, misc, "Bedrijfsgegevens")
	assert.Contains(t, misc, "Sociale Media")
	assert.Contains(t, misc, "Certificeringen")
	assert.NotContains(t, misc, "Leeg", "empty tabs are dropped")
	assert.True(t, strings.Index(rec.Value("miscellaneous_info"), "Bedrijfsgegevens") < strings.Index(rec.Value("miscellaneous_info"), "Certificeringen"))

	var competitors []map[string]string
	require.NoError(t, json.Unmarshal([]byte(rec.Value("competitors")), &competitors))
	require.Len(t, competitors, 1)
	assert.Equal(t, "Bakker De Molen", competitors[0]["competitor_title"])
	assert.Equal(t, "https://www.goudengids.nl/nl/bedrijf/utrecht/L999/", competitors[0]["competitor_url"])
	assert.Equal(t, "030-7654321", competitors[0]["competitor_phone"])

	assert.Equal(t, "info@bakkerijjansen.nl", rec.DedupKey(mustSite(t, KeyNL).DedupFields()))
}

func TestExtractNL_FallbacksAndSentinels(t *testing.T) {
	html := `<html><head><meta name="description" content="Meta omschrijving. Bel ons."></head><body>
	<div id="profile"><div class="yp-container--lg"><div class="lg:grid-cols-11"><div class="profile__main">
	<h1 itemprop="name">Alleen Naam</h1><span data-yext="street">Straat 1</span>
	</div></div></div></div></body></html>`

	rec, failure := mustSite(t, KeyNL).Extract(html)
	require.Nil(t, failure)
	assert.Equal(t, "Meta omschrijving.", rec.Value("description"))
	for _, col := range []string{"business_id", "phone", "address", "email", "business_url", "business_images", "miscellaneous_info", "competitors", "crawled_url"} {
		assert.Equal(t, models.Unavailable, rec.Value(col), col)
	}
	assert.Equal(t, "Alleen Naam", rec.DedupKey(mustSite(t, KeyNL).DedupFields()))
}

func TestExtractNL_ConfiguredNoise(t *testing.T) {
	s, err := New(KeyNL, Options{DescriptionNoise: []*regexp.Regexp{regexp.MustCompile(`\s*Bekijk ons menu\.?`)}})
	require.NoError(t, err)
	rec, failure := s.Extract(strings.Replace(nlProfileHTML, "elke dag.", "elke dag. Bekijk ons menu.", 1))
	require.Nil(t, failure)
	assert.Equal(t, "Vers brood elke dag.", rec.Value("description"))
}

func TestExtractES(t *testing.T) {
	rec, failure := mustSite(t, KeyES).Extract(esProfileHTML)
	require.Nil(t, failure)

	assert.Equal(t, esColumns, rec.Keys())
	assert.Equal(t, "123456789_000000001", rec.Value("business_id"))
	assert.Equal(t, "Fontaneros", rec.Value("profession"))
	assert.Equal(t, "https://www.paginasamarillas.es/f/madrid/fontaneria-lopez_123456789_000000001.html", rec.Value("crawled_url"))
	assert.Equal(t, "911 222 333", rec.Value("phone"), "DOM phone wins over the inline value")
	assert.Equal(t, "Calle Mayor 1 28013 Madrid", rec.Value("address"))
	assert.Equal(t, "https://lopez.es", rec.Value("business_url"))
	assert.Equal(t, "info@lopez.es", rec.Value("email"))
	assert.Equal(t, "https://img/a.jpg", rec.Value("business_images"))
	assert.Equal(t, "Parking | Wifi", rec.Value("miscellaneous_info"))
	assert.Equal(t, "Fontanería López, Madrid", rec.Value("profile_title"))
	assert.Equal(t, "40.4168", rec.Value("latitude"))
	assert.Equal(t, "-3.7038", rec.Value("longitude"))

	desc := rec.Value("description")
	assert.Contains(t, desc, "**urgente**")
	assert.Contains(t, desc, "\n")
	assert.Contains(t, desc, "Presupuesto sin compromiso.")
}

func TestExtractES_PhoneRegexFallback(t *testing.T) {
	html := `<html><head><script>window.__data = {"name":"x","phone":"+34911222333"};</script></head><body>
	<section class="data-contact"><div class="text-center"><h1 itemprop="name">Cerrajería Sol</h1></div></section>
	</body></html>`

	rec, failure := mustSite(t, KeyES).Extract(html)
	require.Nil(t, failure)
	assert.Equal(t, "+34911222333", rec.Value("phone"))
	assert.Equal(t, models.Unavailable, rec.Value("email"))
	assert.Equal(t, models.Unavailable, rec.Value("description"))
	assert.Equal(t, "Cerrajería Sol", rec.Value("profile_title"))
	assert.Equal(t, "+34911222333", rec.DedupKey(mustSite(t, KeyES).DedupFields()))
}

func TestExtractES_AddressAndWebsiteFallbacks(t *testing.T) {
	html := `<html><body><script>{"businessAddress":"Av. Sol 2, Sevilla","adWebEstablecimiento":"https://sol.es"}</script>
	<section class="data-contact"></section></body></html>`

	rec, failure := mustSite(t, KeyES).Extract(html)
	require.Nil(t, failure)
	assert.Equal(t, "Av. Sol 2, Sevilla", rec.Value("address"))
	assert.Equal(t, "https://sol.es", rec.Value("business_url"))
}

func TestExtract_MissingSelectorsReturnsErrorShape(t *testing.T) {
	for _, key := range Keys() {
		t.Run(key, func(t *testing.T) {
			var (
				rec     *models.Record
				failure *models.ExtractionFailure
			)
			assert.NotPanics(t, func() {
				rec, failure = mustSite(t, key).Extract(`<html><body><p>nothing here</p></body></html>`)
			})
			assert.Nil(t, rec)
			require.NotNil(t, failure)
			assert.Equal(t, "MissingElementError", failure.Kind)
			assert.NotEmpty(t, failure.Message)
		})
	}
}

func TestExtract_EmptyMarkup(t *testing.T) {
	_, failure := mustSite(t, KeyNL).Extract("")
	require.NotNil(t, failure)
	assert.Equal(t, "EmptyContentError", failure.Kind)
}
