package browser

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	cookieWrapperSelector = "#cookiescript_injected_wrapper"
	cookieAcceptSelector  = "#cookiescript_accept"
	cookieClickTimeout    = 5 * time.Second
)

// DismissCookies clicks the consent banner's accept button when the banner is present.
// Returns true only if the click happened; failures are logged, never returned.
func DismissCookies(ctx context.Context, page Page, log *logrus.Entry) bool {
	present, err := page.Has(ctx, cookieWrapperSelector, cookieClickTimeout)
	if err != nil || !present {
		return false
	}
	hasAccept, err := page.Has(ctx, cookieAcceptSelector, cookieClickTimeout)
	if err != nil || !hasAccept {
		log.Debug("Cookie banner present but accept button not found")
		return false
	}
	if err := page.Click(ctx, cookieAcceptSelector, cookieClickTimeout); err != nil {
		log.WithError(err).Warn("Failed to dismiss cookie banner")
		return false
	}
	log.Debug("Cookie banner dismissed")
	return true
}
