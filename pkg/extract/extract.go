// Package extract holds the markup helpers shared by the per-site field extractors:
// typed failures, panic containment, DOM text helpers, and inline-JSON regex fallbacks.
package extract

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// KindPanic is the failure kind reported when an extractor panics
const KindPanic = "Panic"

// MissingElementError reports a structural element without which a page cannot be parsed
type MissingElementError struct {
	Element  string
	Selector string
}

func (e *MissingElementError) Error() string {
	return fmt.Sprintf("%s not found (%s)", e.Element, e.Selector)
}

// EmptyContentError reports blank page markup
type EmptyContentError struct{}

func (e *EmptyContentError) Error() string {
	return "page content is empty, nothing to process"
}

// Kind names err by its concrete type ("MissingElementError"), looking through fmt.Errorf wrapping.
// Plain errors.New values report "Error".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for reflect.TypeOf(err).String() == "*fmt.wrapError" && errors.Unwrap(err) != nil {
		err = errors.Unwrap(err)
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "errors" {
		return "Error"
	}
	return t.Name()
}

// Failure converts err into the typed per-item failure value
func Failure(err error) *models.ExtractionFailure {
	return &models.ExtractionFailure{Kind: Kind(err), Message: err.Error()}
}

// Run invokes parse and turns any returned error or panic into an ExtractionFailure.
// It never panics.
func Run(markup string, parse func(markup string) (*models.Record, error)) (rec *models.Record, failure *models.ExtractionFailure) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			failure = &models.ExtractionFailure{Kind: KindPanic, Message: fmt.Sprint(r)}
		}
	}()
	if strings.TrimSpace(markup) == "" {
		return nil, Failure(&EmptyContentError{})
	}
	rec, err := parse(markup)
	if err != nil {
		return nil, Failure(err)
	}
	return rec, nil
}

// Document parses markup into a goquery document
func Document(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML: %v", utils.ErrParsing, err)
	}
	return doc, nil
}

// Text returns the whitespace-normalized text of the first matched node
func Text(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return utils.NormalizeSpace(sel.First().Text())
}

// Attr returns the trimmed attribute of the first matched node
func Attr(sel *goquery.Selection, name string) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	v, _ := sel.First().Attr(name)
	return strings.TrimSpace(v)
}

// Attrs collects a non-blank attribute from every matched node, in document order
func Attrs(sel *goquery.Selection, name string) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

// Texts collects the normalized text of every matched node, skipping blanks
func Texts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if v := utils.NormalizeSpace(s.Text()); v != "" {
			out = append(out, v)
		}
	})
	return out
}

var (
	jsonFieldMu       sync.Mutex
	jsonFieldPatterns = map[string]*regexp.Regexp{}
)

// JSONField scans raw markup for an inline `"key":"value"` pair and returns the first value.
// Used where a site embeds fields in script data rather than in DOM attributes.
func JSONField(markup, key string) string {
	jsonFieldMu.Lock()
	re, ok := jsonFieldPatterns[key]
	if !ok {
		re = regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"([^"]+)"`)
		jsonFieldPatterns[key] = re
	}
	jsonFieldMu.Unlock()

	m := re.FindStringSubmatch(markup)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Markdown converts an HTML fragment to text that keeps line breaks and renders bold as **x**.
// Each line is whitespace-normalized and blank lines are dropped.
func Markdown(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil
	}
	converter := md.NewConverter("", true, &md.Options{StrongDelimiter: "**", EmDelimiter: "_"})
	out, err := converter.ConvertString(fragment)
	if err != nil {
		return "", fmt.Errorf("%w: HTML to markdown: %v", utils.ErrParsing, err)
	}
	return utils.NormalizeLines(out), nil
}

// StripNoise removes literal phrases and regex matches from text and re-normalizes whitespace
func StripNoise(text string, phrases []string, patterns []*regexp.Regexp) string {
	for _, p := range phrases {
		text = strings.ReplaceAll(text, p, "")
	}
	for _, re := range patterns {
		text = re.ReplaceAllString(text, "")
	}
	return utils.NormalizeSpace(text)
}
