package sites

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/Sriram-PR/bizdir-scraper/pkg/extract"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

var esColumns = []string{
	"uuid", "business_id", "profession", "crawled_url", "phone", "address",
	"business_url", "email", "description", "business_images", "miscellaneous_info",
	"profile_title", "latitude", "longitude",
}

const esContactSection = "section.data-contact"

var esBusinessID = regexp.MustCompile(`_(\d+_\d+)\.html`)

// paginasAmarillas is www.paginasamarillas.es
type paginasAmarillas struct {
	base *url.URL
	opts Options
}

func newPaginasAmarillas(opts Options) *paginasAmarillas {
	return &paginasAmarillas{base: mustParse("https://www.paginasamarillas.es"), opts: opts}
}

func (s *paginasAmarillas) Key() string       { return KeyES }
func (s *paginasAmarillas) BaseURL() *url.URL { return s.base }
func (s *paginasAmarillas) PageSize() int     { return 30 }

// BatchName ignores the region; this directory's listing URLs carry only the keyword
func (s *paginasAmarillas) BatchName(q models.ListingQuery) string {
	return utils.SanitizeFilename("es_" + strings.TrimSpace(q.Keyword))
}

func (s *paginasAmarillas) ListingURL(q models.ListingQuery, page int) string {
	return s.base.String() + "/search/" + url.PathEscape(strings.TrimSpace(q.Keyword)) +
		"/all-ma/all-pr/all-is/all-ci/all-ba/all-pu/all-nc/" + strconv.Itoa(page)
}

func (s *paginasAmarillas) CountReadySelector() string { return ".first-content-listado" }

func (s *paginasAmarillas) ParseCount(doc *goquery.Document) (int, bool) {
	el := doc.Find(`span[class="h1"]`)
	if el.Length() == 0 {
		return 0, false
	}
	return parseCountText(el.First().Text())
}

func (s *paginasAmarillas) ResultsReadySelector() string { return "div.bloque-central" }

func (s *paginasAmarillas) ParseEndpoints(doc *goquery.Document) []string {
	container := doc.Find("div.bloque-central .central div[itemscope]").First()
	return resolveAll(s.base, extract.Attrs(container.Find(`a[data-omniclick="name"]`), "href"))
}

func (s *paginasAmarillas) TruncatesHarvest() bool       { return true }
func (s *paginasAmarillas) ProfileReadySelector() string { return esContactSection }

// DedupFields uses profile_title in the name slot; this directory has no business_name column
func (s *paginasAmarillas) DedupFields() []string {
	return []string{"email", "phone", "profile_title"}
}

func (s *paginasAmarillas) Extract(markup string) (*models.Record, *models.ExtractionFailure) {
	return extract.Run(markup, s.parseProfile)
}

func (s *paginasAmarillas) parseProfile(markup string) (*models.Record, error) {
	doc, err := extract.Document(markup)
	if err != nil {
		return nil, err
	}

	contact := doc.Find(esContactSection).First()
	if contact.Length() == 0 {
		return nil, &extract.MissingElementError{Element: "contact section", Selector: esContactSection}
	}
	info := doc.Find("section.data-info").First()

	canonical := extract.Attr(doc.Find(`link[rel="canonical"]`), "href")
	var businessID string
	if m := esBusinessID.FindStringSubmatch(canonical); m != nil {
		businessID = m[1]
	}

	description, err := esDescription(info, s.opts)
	if err != nil {
		return nil, err
	}

	rec := models.NewRecord(esColumns...)
	rec.Set("uuid", uuid.NewString())
	rec.Set("business_id", businessID)
	rec.Set("profession", extract.JSONField(markup, "activity"))
	rec.Set("crawled_url", canonical)
	rec.SetFirst("phone",
		extract.Text(contact.Find("div.detalles-contacto div .content span.telephone b")),
		extract.JSONField(markup, "phone"))
	rec.SetFirst("address", esAddress(contact), extract.JSONField(markup, "businessAddress"))
	rec.SetFirst("business_url",
		extract.Attr(contact.Find(`a.sitio-web[rel="noopener nofollow"][itemprop="url"]`), "href"),
		extract.JSONField(markup, "adWebEstablecimiento"))
	rec.Set("email", extract.JSONField(markup, "customerMail"))
	rec.Set("description", description)
	rec.Set("business_images", strings.Join(extract.Attrs(doc.Find(`div#videos_y_fotos div.col-12 div.container img.galeria-imagenes`), "src"), ", "))
	rec.Set("miscellaneous_info", strings.Join(extract.Texts(doc.Find("div.info-adicional").First().Find("li")), " | "))
	rec.Set("profile_title", esTitle(contact))
	rec.Set("latitude", extract.JSONField(markup, "latitude"))
	rec.Set("longitude", extract.JSONField(markup, "longitude"))
	return rec, nil
}

// esTitle renders "name, locality"; the locality span sits inside the heading
func esTitle(contact *goquery.Selection) string {
	heading := contact.Find(`div.text-center h1[itemprop="name"]`).First()
	if heading.Length() == 0 {
		return ""
	}
	locality := extract.Text(heading.Find("span.localidad"))
	name := utils.NormalizeSpace(heading.Clone().Find("span.localidad").Remove().End().Text())
	switch {
	case name == "":
		return locality
	case locality == "":
		return name
	default:
		return name + ", " + locality
	}
}

func esAddress(contact *goquery.Selection) string {
	addr := contact.Find(`span.address[itemprop="address"]`).First()
	if addr.Length() == 0 {
		return ""
	}
	parts := []string{
		extract.Text(addr.Find(`span[itemprop="streetAddress"]`)),
		extract.Text(addr.Find(`span[itemprop="postalCode"]`)),
		extract.Text(addr.Find(`span[itemprop="addressLocality"]`)),
	}
	return utils.NormalizeSpace(strings.Join(parts, " "))
}

// esDescription keeps line breaks and bold from the description paragraph
func esDescription(info *goquery.Selection, opts Options) (string, error) {
	para := info.Find(`p[data-yext="desc"]`).First()
	if para.Length() == 0 {
		return "", nil
	}
	inner, err := para.Html()
	if err != nil {
		return "", err
	}
	text, err := extract.Markdown(inner)
	if err != nil {
		return "", err
	}
	for _, re := range opts.DescriptionNoise {
		text = re.ReplaceAllString(text, "")
	}
	return utils.NormalizeLines(text), nil
}
