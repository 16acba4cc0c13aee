package browser

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// LoadOptions bounds one page load
type LoadOptions struct {
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	ReadySelector     string // Empty skips the wait
	ReadyRequired     bool   // When false a failed wait is logged and the markup is read anyway
	DismissCookies    bool
}

// Load navigates page to url, waits for the ready selector and returns the document markup.
// Navigation is strictly sequential: goto, optional cookie dismissal, wait, read.
func Load(ctx context.Context, page Page, url string, opts LoadOptions, log *logrus.Entry) (string, error) {
	if err := page.Goto(ctx, url, opts.NavigationTimeout); err != nil {
		return "", err
	}

	if opts.DismissCookies {
		DismissCookies(ctx, page, log)
	}

	if opts.ReadySelector != "" {
		if err := page.WaitVisible(ctx, opts.ReadySelector, opts.ReadyTimeout); err != nil {
			if opts.ReadyRequired || errors.Is(err, utils.ErrContextTeardown) || ctx.Err() != nil {
				return "", err
			}
			log.WithError(err).Debugf("Ready selector %q not visible, reading page anyway", opts.ReadySelector)
		}
	}

	return page.Content(ctx, opts.NavigationTimeout)
}

// LoadInNewPage opens a page in session, loads url and closes the page again
func LoadInNewPage(ctx context.Context, session Session, url string, opts LoadOptions, log *logrus.Entry) (string, error) {
	page, err := session.NewPage(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Tracef("Closing page for %s: %v", url, cerr)
		}
	}()
	return Load(ctx, page, url, opts, log)
}
