package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
)

// Page is one tab inside a session
type Page interface {
	// Goto navigates and waits for the load event, bounded by timeout
	Goto(ctx context.Context, url string, timeout time.Duration) error
	// WaitVisible waits until selector matches a visible element, bounded by timeout
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Content returns the current document markup, bounded by timeout
	Content(ctx context.Context, timeout time.Duration) (string, error)
	// Has reports whether selector currently matches, without waiting for it to appear
	Has(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// Click clicks the first element matching selector, bounded by timeout
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Close() error
}

// Session is an isolated browsing context (own cookies and storage) with fixed headers
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// SessionFactory opens sessions; *Browser is the production implementation
type SessionFactory interface {
	NewSession(ctx context.Context, headers HeaderProfile) (Session, error)
}

// Browser owns one Chromium process shared by every session of a run
type Browser struct {
	cfg      config.BrowserConfig
	log      *logrus.Entry
	launcher *launcher.Launcher

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowser prepares a browser; Chromium starts on the first NewSession call
func NewBrowser(cfg config.BrowserConfig, log *logrus.Entry) *Browser {
	return &Browser{cfg: cfg, log: log.WithField("component", "browser")}
}

func (b *Browser) connect(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(b.cfg.IsHeadless()).
			Leakless(false).
			Set(flags.Flag("disable-blink-features"), "AutomationControlled").
			Set(flags.Flag("disable-infobars")).
			Set(flags.Flag("disable-dev-shm-usage")).
			Set(flags.Flag("disable-notifications")).
			Set(flags.Flag("mute-audio")).
			Logger(b.log.WriterLevel(logrus.TraceLevel))
		if b.cfg.BinPath != "" {
			l = l.Bin(b.cfg.BinPath)
		}
		if b.cfg.Proxy != "" {
			l = l.Proxy(b.cfg.Proxy)
		}
		for _, raw := range b.cfg.ExtraFlags {
			name, value, _ := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if value != "" {
				l = l.Set(flags.Flag(name), value)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		b.launcher = l
		controlURL = u
		b.log.WithField("headless", b.cfg.IsHeadless()).Info("Browser launched")
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		if b.launcher != nil {
			b.launcher.Kill()
			b.launcher = nil
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	b.browser = rb
	return rb, nil
}

// NewSession opens an incognito context whose pages carry headers
func (b *Browser) NewSession(ctx context.Context, headers HeaderProfile) (Session, error) {
	rb, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	incognito, err := rb.Incognito()
	if err != nil {
		return nil, classify(ctx, "open context", err)
	}
	b.log.WithField("headers", headers.Name()).Debug("Browsing context opened")
	return &rodSession{
		browser: incognito,
		headers: headers,
		width:   b.cfg.ViewportWidth,
		height:  b.cfg.ViewportHeight,
		log:     b.log,
	}, nil
}

// Close shuts down the browser and the launched process, if any
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
		b.launcher = nil
	}
	return err
}

type rodSession struct {
	browser *rod.Browser
	headers HeaderProfile
	width   int
	height  int
	log     *logrus.Entry
}

func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	p, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, classify(ctx, "create page", err)
	}
	if s.width > 0 && s.height > 0 {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             s.width,
			Height:            s.height,
			DeviceScaleFactor: 1,
		}); err != nil {
			p.Close()
			return nil, classify(ctx, "set viewport", err)
		}
	}
	if ua := s.headers.UserAgent(); ua != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: s.headers.Get("accept-language"),
		}); err != nil {
			p.Close()
			return nil, classify(ctx, "set user agent", err)
		}
	}
	if pairs := s.headers.Pairs(); len(pairs) > 0 {
		if _, err := p.SetExtraHeaders(pairs); err != nil {
			p.Close()
			return nil, classify(ctx, "set headers", err)
		}
	}
	return &rodPage{page: p}, nil
}

func (s *rodSession) Close() error {
	return s.browser.Close()
}

type rodPage struct {
	page *rod.Page
}

// bounded binds the page to ctx and, for a positive timeout, a deadline
func (p *rodPage) bounded(ctx context.Context, timeout time.Duration) (*rod.Page, func()) {
	if timeout <= 0 {
		return p.page.Context(ctx), func() {}
	}
	tp := p.page.Context(ctx).Timeout(timeout)
	return tp, func() { tp.CancelTimeout() }
}

func (p *rodPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	tp, cancel := p.bounded(ctx, timeout)
	defer cancel()
	if err := tp.Navigate(url); err != nil {
		return classify(ctx, "navigate", err)
	}
	if err := tp.WaitLoad(); err != nil {
		return classify(ctx, "wait load", err)
	}
	return nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	tp, cancel := p.bounded(ctx, timeout)
	defer cancel()
	el, err := tp.Element(selector)
	if err != nil {
		return classify(ctx, "wait for "+selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return classify(ctx, "wait visible "+selector, err)
	}
	return nil
}

func (p *rodPage) Content(ctx context.Context, timeout time.Duration) (string, error) {
	tp, cancel := p.bounded(ctx, timeout)
	defer cancel()
	html, err := tp.HTML()
	if err != nil {
		return "", classify(ctx, "read content", err)
	}
	return html, nil
}

func (p *rodPage) Has(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	tp, cancel := p.bounded(ctx, timeout)
	defer cancel()
	found, _, err := tp.Has(selector)
	if err != nil {
		return false, classify(ctx, "query "+selector, err)
	}
	return found, nil
}

func (p *rodPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	tp, cancel := p.bounded(ctx, timeout)
	defer cancel()
	el, err := tp.Element(selector)
	if err != nil {
		return classify(ctx, "find "+selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(ctx, "click "+selector, err)
	}
	return nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
