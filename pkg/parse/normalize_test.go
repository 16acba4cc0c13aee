package parse

import (
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

func TestNormalizeURL_NilInput(t *testing.T) {
	if result := NormalizeURL(nil); result != "" {
		t.Errorf("NormalizeURL(nil) = %q, want empty string", result)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"UppercaseHost", "HTTPS://WWW.GoudenGids.NL/nl/bedrijf/Utrecht/", "https://www.goudengids.nl/nl/bedrijf/Utrecht"},
		{"DefaultHTTPSPort", "https://www.paginasamarillas.es:443/f/madrid/x.html", "https://www.paginasamarillas.es/f/madrid/x.html"},
		{"DefaultHTTPPort", "http://example.com:80/a", "http://example.com/a"},
		{"NonDefaultPort", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"QueryAndFragment", "https://example.com/page?utm=1#top", "https://example.com/page"},
		{"EmptyPath", "https://example.com", "https://example.com/"},
		{"RootPath", "https://example.com/", "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := url.Parse(tt.input)
			if err != nil {
				t.Fatalf("url.Parse(%q): %v", tt.input, err)
			}
			if got := NormalizeURL(parsed); got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeURL_DoesNotModifyInput(t *testing.T) {
	parsed, err := url.Parse("HTTP://Example.COM:80/path/?q=1#frag")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	before := parsed.String()
	origHost, origPath, origFragment := parsed.Host, parsed.Path, parsed.Fragment

	normalized := NormalizeURL(parsed)

	if normalized == before {
		t.Fatalf("NormalizeURL(%q) returned its input unchanged", before)
	}
	if parsed.String() != before {
		t.Errorf("input URL was modified: got %q, want %q", parsed.String(), before)
	}
	if parsed.Host != origHost || parsed.Path != origPath || parsed.Fragment != origFragment {
		t.Errorf("input fields changed: host %q path %q fragment %q", parsed.Host, parsed.Path, parsed.Fragment)
	}
}

func TestParseAndNormalize_InvalidURLs(t *testing.T) {
	for _, input := range []string{"example.com/path", "", "path/to/page", "://example.com"} {
		resultStr, parsedURL, err := ParseAndNormalize(input)
		if err == nil {
			t.Errorf("ParseAndNormalize(%q) expected error, got nil", input)
		}
		if resultStr != "" || parsedURL != nil {
			t.Errorf("ParseAndNormalize(%q) = (%q, %v), want empty results", input, resultStr, parsedURL)
		}
	}
}

func TestResolveEndpoint(t *testing.T) {
	base, _ := url.Parse("https://www.goudengids.nl")
	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{"Relative", "/nl/bedrijf/utrecht/L123/bakkerij-jansen/", "https://www.goudengids.nl/nl/bedrijf/utrecht/L123/bakkerij-jansen/"},
		{"AbsoluteKeepsQuery", "https://WWW.paginasamarillas.es/f/madrid/fontanero_123_456.html?x=1#map", "https://www.paginasamarillas.es/f/madrid/fontanero_123_456.html?x=1"},
		{"Whitespace", "  /nl/bedrijf/a/  ", "https://www.goudengids.nl/nl/bedrijf/a/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(base, tt.href)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("ResolveEndpoint(%q) = %q, want %q", tt.href, got, tt.expected)
			}
		})
	}
}

func TestResolveEndpoint_Errors(t *testing.T) {
	if _, err := ResolveEndpoint(nil, "   "); !errors.Is(err, utils.ErrParsing) {
		t.Errorf("empty href: want ErrParsing, got %v", err)
	}
	if _, err := ResolveEndpoint(nil, "/relative/only"); !errors.Is(err, utils.ErrParsing) {
		t.Errorf("relative without base: want ErrParsing, got %v", err)
	}
}

func TestPageNumber(t *testing.T) {
	tests := []struct {
		input string
		n     int
		ok    bool
	}{
		{"https://www.goudengids.nl/nl/zoeken/bakker/utrecht/12", 12, true},
		{"https://www.goudengids.nl/nl/zoeken/bakker/3/", 3, true},
		{"https://www.paginasamarillas.es/search/fontaneros/all-ma/all-pr/all-is/all-ci/all-ba/all-pu/all-nc/1", 1, true},
		{"https://www.goudengids.nl/nl/zoeken/bakker", 0, false},
	}
	for _, tt := range tests {
		n, ok := PageNumber(tt.input)
		if n != tt.n || ok != tt.ok {
			t.Errorf("PageNumber(%q) = (%d, %v), want (%d, %v)", tt.input, n, ok, tt.n, tt.ok)
		}
	}
}

func TestSortByPageNumber_NumericNotLexical(t *testing.T) {
	urls := []string{
		"https://x.nl/zoeken/a/10",
		"https://x.nl/zoeken/a/9",
		"https://x.nl/zoeken/a/no-number",
		"https://x.nl/zoeken/a/1",
	}
	SortByPageNumber(urls)
	expected := []string{
		"https://x.nl/zoeken/a/1",
		"https://x.nl/zoeken/a/9",
		"https://x.nl/zoeken/a/10",
		"https://x.nl/zoeken/a/no-number",
	}
	if !reflect.DeepEqual(urls, expected) {
		t.Errorf("SortByPageNumber = %v, want %v", urls, expected)
	}
}

func TestDedupeURLs_KeepsFirstSeen(t *testing.T) {
	in := []string{
		"https://x.nl/b/",
		"https://x.nl/a",
		"https://X.NL/b",
		"https://x.nl/a#frag",
	}
	got := DedupeURLs(in)
	expected := []string{"https://x.nl/b/", "https://x.nl/a"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("DedupeURLs = %v, want %v", got, expected)
	}
}
