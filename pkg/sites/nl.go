package sites

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Sriram-PR/bizdir-scraper/pkg/extract"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

var nlColumns = []string{
	"uuid", "business_id", "business_name", "crawled_url", "phone", "address",
	"business_url", "email", "description", "business_images", "miscellaneous_info", "competitors",
}

var nlDescriptionNoise = []string{"Bel ons.", "Meer info >>"}

const (
	nlMainContainer = `div#profile .yp-container--lg [class~="lg:grid-cols-11"]`
	nlLeftContainer = ".profile__main"
)

// goudenGids is www.goudengids.nl
type goudenGids struct {
	base *url.URL
	opts Options
}

func newGoudenGids(opts Options) *goudenGids {
	return &goudenGids{base: mustParse("https://www.goudengids.nl"), opts: opts}
}

func (s *goudenGids) Key() string       { return KeyNL }
func (s *goudenGids) BaseURL() *url.URL { return s.base }
func (s *goudenGids) PageSize() int     { return 20 }

func (s *goudenGids) BatchName(q models.ListingQuery) string {
	name := strings.TrimSpace(q.Keyword)
	if region := strings.TrimSpace(q.Region); region != "" {
		name += "_" + region
	}
	return utils.SanitizeFilename(name)
}

func (s *goudenGids) ListingURL(q models.ListingQuery, page int) string {
	u := s.base.String() + "/nl/zoeken/" + url.PathEscape(strings.TrimSpace(q.Keyword))
	if region := strings.TrimSpace(q.Region); region != "" {
		u += "/" + url.PathEscape(region)
	}
	return u + "/" + strconv.Itoa(page)
}

func (s *goudenGids) CountReadySelector() string { return ".result-info__count" }

func (s *goudenGids) ParseCount(doc *goquery.Document) (int, bool) {
	el := doc.Find(".result-info__count span.count")
	if el.Length() == 0 {
		return 0, false
	}
	return parseCountText(el.First().Text())
}

func (s *goudenGids) ResultsReadySelector() string { return "div#results-box" }

func (s *goudenGids) ParseEndpoints(doc *goquery.Document) []string {
	container := doc.Find("div#results-box div.relative ol.result-items").First()
	return resolveAll(s.base, extract.Attrs(container.Find("li.result-item"), "data-href"))
}

func (s *goudenGids) TruncatesHarvest() bool       { return false }
func (s *goudenGids) ProfileReadySelector() string { return "div#profile" }

func (s *goudenGids) DedupFields() []string {
	return []string{"email", "phone", "business_name"}
}

func (s *goudenGids) Extract(markup string) (*models.Record, *models.ExtractionFailure) {
	return extract.Run(markup, s.parseProfile)
}

func (s *goudenGids) parseProfile(markup string) (*models.Record, error) {
	doc, err := extract.Document(markup)
	if err != nil {
		return nil, err
	}

	container := doc.Find(nlMainContainer).First()
	if container.Length() == 0 {
		return nil, &extract.MissingElementError{Element: "main container", Selector: nlMainContainer}
	}
	left := container.Find(nlLeftContainer).First()
	if left.Length() == 0 {
		return nil, &extract.MissingElementError{Element: "left container", Selector: nlLeftContainer}
	}

	rec := models.NewRecord(nlColumns...)
	rec.Set("uuid", uuid.NewString())
	rec.Set("business_id", extract.Attr(doc.Find(`div#profile`), "data-id"))
	rec.Set("business_name", extract.Text(left.Find(`h1[itemprop="name"]`)))
	rec.Set("crawled_url", s.crawledURL(doc))
	rec.Set("phone", strings.TrimPrefix(extract.Attr(left.Find(`a[data-ta="PhoneButtonClick"][data-tc="DETAIL"]`), "href"), "tel:"))
	rec.Set("address", nlAddress(left))
	rec.Set("business_url", extract.Attr(left.Find(`div[data-ta="WebsiteActionClick"]`), "data-js-value"))
	rec.Set("email", extract.Attr(left.Find(`div[data-ta="EmailActionClick"][data-tc="SEARCH"]`), "data-js-value"))
	rec.Set("description", s.description(doc))
	rec.Set("business_images", strings.Join(extract.Attrs(doc.Find("div.gallery__column img.gallery__item"), "src"), ", "))

	misc, err := nlMiscellaneous(doc)
	if err != nil {
		return nil, err
	}
	rec.Set("miscellaneous_info", misc)

	competitors, err := s.competitors(doc)
	if err != nil {
		return nil, err
	}
	rec.Set("competitors", competitors)
	return rec, nil
}

// crawledURL is the href of the element wrapping the breadcrumb position-4 meta tag
func (s *goudenGids) crawledURL(doc *goquery.Document) string {
	href := extract.Attr(doc.Find(`meta[content="4"]`).First().Parent(), "href")
	if href == "" {
		return ""
	}
	abs, err := s.base.Parse(href)
	if err != nil {
		return ""
	}
	return abs.String()
}

// nlAddress formats "street, postcode city"; both street and postcode are required
func nlAddress(left *goquery.Selection) string {
	street := extract.Text(left.Find(`span[data-yext="street"]`))
	postcode := extract.Text(left.Find(`span[data-yext="postal-code"]`))
	city := extract.Text(left.Find(`span[data-yext="city"]`))
	if street == "" || postcode == "" {
		return ""
	}
	return strings.TrimSpace(street + ", " + postcode + " " + city)
}

// description tries the toggle box, then the profile tab, then the meta description
func (s *goudenGids) description(doc *goquery.Document) string {
	text := extract.Text(doc.Find("#toggle-box__description + .toggle-box__content"))
	if text == "" {
		heading := doc.Find("h3.tab__title.profile-heading").First()
		text = extract.Text(heading.NextAllFiltered("div.tab__inner"))
	}
	if text == "" {
		text = extract.Attr(doc.Find(`meta[name="description"]`), "content")
	}
	return extract.StripNoise(text, nlDescriptionNoise, s.opts.DescriptionNoise)
}

// nlMiscellaneous collects the profile's info tabs as a JSON object keyed by tab heading.
// Tabs that yield nothing are left out; an empty result is "".
func nlMiscellaneous(doc *goquery.Document) (string, error) {
	info := orderedmap.New[string, []any]()

	doc.Find("div.tab__content, div#economic-data, div#parking-info").Each(func(_ int, tab *goquery.Selection) {
		heading := extract.Text(tab.Find("h3.tab__title"))
		if heading == "" {
			heading = "Unknown"
		}
		var data []any

		id, _ := tab.Attr("id")
		switch {
		case id == "economic-data" || id == "parking-info":
			tab.Find("ul#" + id + "-list li").Each(func(_ int, li *goquery.Selection) {
				key := extract.Text(li.Find("span.font-semibold"))
				value := utils.NormalizeSpace(li.Contents().Last().Text())
				data = append(data, map[string]string{key: value})
			})
		case heading == "Sociale Media":
			tab.Find("div.social-media-wrap a").Each(func(_ int, a *goquery.Selection) {
				data = append(data, map[string]string{extract.Attr(a, "title"): extract.Attr(a, "href")})
			})
		case heading == "Certificeringen":
			for _, cert := range extract.Texts(tab.Find("ul.flex.flex-wrap.gap-2 li span")) {
				data = append(data, cert)
			}
		default:
			tab.Find("div.mb-4.pb-4").Each(func(_ int, item *goquery.Selection) {
				subtitle := extract.Text(item.Find("span.tab__subtitle"))
				details := extract.Texts(item.Find("li span"))
				if details == nil {
					details = []string{}
				}
				data = append(data, map[string][]string{subtitle: details})
			})
		}

		if len(data) == 0 {
			info.Delete(heading)
			return
		}
		info.Set(heading, data)
	})

	if info.Len() == 0 {
		return "", nil
	}
	out, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type nlCompetitor struct {
	Title string `json:"competitor_title"`
	URL   string `json:"competitor_url"`
	Phone string `json:"competitor_phone"`
}

func (s *goudenGids) competitors(doc *goquery.Document) (string, error) {
	var list []nlCompetitor
	doc.Find(".competitors-list a.competitor").Each(func(_ int, a *goquery.Selection) {
		href := strings.ReplaceAll(extract.Attr(a, "href"), `"`, "")
		link := ""
		if abs, err := s.base.Parse(href); err == nil && href != "" {
			link = abs.String()
		}
		list = append(list, nlCompetitor{
			Title: strings.ReplaceAll(extract.Attr(a, "data-title"), `"`, ""),
			URL:   link,
			Phone: extract.Text(a.Find(".competitor__phone")),
		})
	})
	if len(list) == 0 {
		return "", nil
	}
	out, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
