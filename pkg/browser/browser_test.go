package browser_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/bizdir-scraper/pkg/browser"
	"github.com/Sriram-PR/bizdir-scraper/pkg/browser/browsertest"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestNewHeaderProfiles_SingleAgentPerRun(t *testing.T) {
	agents := []string{"agent-a", "agent-b", "agent-c"}
	h := browser.NewHeaderProfiles(agents, rand.New(rand.NewSource(7)))

	ua := h.Listing.UserAgent()
	assert.Contains(t, agents, ua)
	assert.Equal(t, ua, h.Profile.UserAgent())
	assert.Equal(t, ua, h.ESListing.UserAgent())
	assert.Equal(t, ua, h.Profile.Get("User-Agent"))
}

func TestNewHeaderProfiles_Contents(t *testing.T) {
	h := browser.NewHeaderProfiles(nil, nil)

	assert.Contains(t, browser.DefaultUserAgents, h.Listing.UserAgent())
	assert.Equal(t, "none", h.Listing.Get("sec-fetch-site"))
	assert.Equal(t, "same-origin", h.Profile.Get("Sec-Fetch-Site"))
	assert.Equal(t, "1", h.ESListing.Get("upgrade-insecure-requests"))
	assert.Empty(t, h.Listing.Get("upgrade-insecure-requests"))

	assert.Equal(t, h.ESListing, h.ForListing("es"))
	assert.Equal(t, h.Listing, h.ForListing("nl"))
}

func TestHeaderProfile_PairsAreSortedAndCopied(t *testing.T) {
	h := browser.NewHeaderProfiles([]string{"ua"}, nil)
	pairs := h.Profile.Pairs()
	require.Equal(t, 0, len(pairs)%2)
	for i := 2; i < len(pairs); i += 2 {
		assert.Less(t, pairs[i-2], pairs[i], "header names should be sorted")
	}
	assert.NotContains(t, pairs, "user-agent")

	pairs[1] = "mutated"
	assert.NotEqual(t, "mutated", h.Profile.Pairs()[1], "Pairs must not expose internal state")
}

func TestIsTeardown(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", fmt.Errorf("wrap: %w", utils.ErrContextTeardown), true},
		{"target closed", errors.New("{-32000 Target closed. }"), true},
		{"session gone", errors.New("Session with given id not found."), true},
		{"disconnected", errors.New("browser has disconnected"), true},
		{"timeout", errors.New("context deadline exceeded"), false},
		{"navigation", errors.New("net::ERR_CONNECTION_RESET"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, browser.IsTeardown(tt.err))
		})
	}
}

func TestDismissCookies(t *testing.T) {
	const url = "https://www.goudengids.nl/nl/bedrijf/a/"
	ctx := context.Background()

	t.Run("banner present", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		f.Responses[url] = browsertest.FakeResponse{HTML: "<html></html>", Selector: map[string]bool{
			"#cookiescript_injected_wrapper": true,
			"#cookiescript_accept":           true,
		}}
		page := openPage(t, f, url)
		assert.True(t, browser.DismissCookies(ctx, page, testLogger()))
		assert.Equal(t, []string{"#cookiescript_accept"}, f.Clicks)
	})

	t.Run("no banner", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		f.Responses[url] = browsertest.FakeResponse{HTML: "<html></html>", Selector: map[string]bool{}}
		page := openPage(t, f, url)
		assert.False(t, browser.DismissCookies(ctx, page, testLogger()))
		assert.Empty(t, f.Clicks)
	})

	t.Run("banner without button", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		f.Responses[url] = browsertest.FakeResponse{HTML: "<html></html>", Selector: map[string]bool{
			"#cookiescript_injected_wrapper": true,
		}}
		page := openPage(t, f, url)
		assert.False(t, browser.DismissCookies(ctx, page, testLogger()))
	})
}

func openPage(t *testing.T, f *browsertest.FakeFactory, url string) browser.Page {
	t.Helper()
	ctx := context.Background()
	sess, err := f.NewSession(ctx, browser.NewHeaderProfiles(nil, nil).Profile)
	require.NoError(t, err)
	page, err := sess.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Goto(ctx, url, 0))
	return page
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	const url = "https://www.goudengids.nl/nl/zoeken/bakker/1"

	t.Run("returns markup once ready", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		f.Set(url, "<html>ok</html>")
		session, err := f.NewSession(ctx, browser.HeaderProfile{})
		require.NoError(t, err)

		html, err := browser.LoadInNewPage(ctx, session, url, browser.LoadOptions{ReadySelector: "div#results-box", ReadyRequired: true}, testLogger())
		require.NoError(t, err)
		assert.Equal(t, "<html>ok</html>", html)
		assert.Equal(t, 1, f.VisitCount(url))
	})

	t.Run("missing ready selector", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		f.Responses[url] = browsertest.FakeResponse{HTML: "<html>partial</html>", Selector: map[string]bool{}}
		session, err := f.NewSession(ctx, browser.HeaderProfile{})
		require.NoError(t, err)

		_, err = browser.LoadInNewPage(ctx, session, url, browser.LoadOptions{ReadySelector: "div#results-box", ReadyRequired: true}, testLogger())
		assert.ErrorIs(t, err, utils.ErrTransientNavigation)

		html, err := browser.LoadInNewPage(ctx, session, url, browser.LoadOptions{ReadySelector: "div#results-box"}, testLogger())
		require.NoError(t, err, "optional wait reads the page anyway")
		assert.Equal(t, "<html>partial</html>", html)
	})

	t.Run("navigation error is returned", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		f.Set(url, "<html></html>")
		f.FailNext(url, fmt.Errorf("%w: target closed", utils.ErrContextTeardown))
		session, err := f.NewSession(ctx, browser.HeaderProfile{})
		require.NoError(t, err)

		_, err = browser.LoadInNewPage(ctx, session, url, browser.LoadOptions{}, testLogger())
		assert.ErrorIs(t, err, utils.ErrContextTeardown)
	})

	t.Run("canceled context stops the read", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		f.Set(url, "<html>ok</html>")
		session, err := f.NewSession(ctx, browser.HeaderProfile{})
		require.NoError(t, err)
		page, err := session.NewPage(ctx)
		require.NoError(t, err)
		require.NoError(t, page.Goto(ctx, url, time.Second))

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = page.Content(canceled, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = page.Has(canceled, "body", time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closed session", func(t *testing.T) {
		f := browsertest.NewFakeFactory()
		session, err := f.NewSession(ctx, browser.HeaderProfile{})
		require.NoError(t, err)
		require.NoError(t, session.Close())

		_, err = browser.LoadInNewPage(ctx, session, url, browser.LoadOptions{}, testLogger())
		assert.True(t, browser.IsTeardown(err))
	})
}
