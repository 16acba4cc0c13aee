// Package browsertest provides an in-memory browser.SessionFactory for stage tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sriram-PR/bizdir-scraper/pkg/browser"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// FakeResponse scripts what a FakePage returns for one URL
type FakeResponse struct {
	HTML     string
	GotoErr  error           // Returned by Goto
	Selector map[string]bool // Selectors reported visible/present; nil means all
	Delay    time.Duration   // Simulated navigation latency
}

// FakeFactory is an in-memory browser.SessionFactory for tests of the pipeline stages.
// Responses are looked up by URL; Fails counts down per URL before the response is served.
type FakeFactory struct {
	mu        sync.Mutex
	Responses map[string]FakeResponse
	Fails     map[string][]error // per-URL errors returned by successive Goto calls before success
	Visits    map[string]int
	Sessions  int
	Headers   []browser.HeaderProfile
	Clicks    []string
}

// NewFakeFactory creates an empty FakeFactory
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{
		Responses: make(map[string]FakeResponse),
		Fails:     make(map[string][]error),
		Visits:    make(map[string]int),
	}
}

// Set registers markup served for url
func (f *FakeFactory) Set(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[url] = FakeResponse{HTML: html}
}

// FailNext queues errors returned by the next Goto calls for url
func (f *FakeFactory) FailNext(url string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fails[url] = append(f.Fails[url], errs...)
}

// VisitCount returns how many times url was navigated to
func (f *FakeFactory) VisitCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Visits[url]
}

// SessionCount returns how many sessions were opened
func (f *FakeFactory) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sessions
}

func (f *FakeFactory) NewSession(ctx context.Context, headers browser.HeaderProfile) (browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions++
	f.Headers = append(f.Headers, headers)
	return &fakeSession{factory: f}, nil
}

type fakeSession struct {
	factory *FakeFactory
	closed  bool
}

func (s *fakeSession) NewPage(ctx context.Context) (browser.Page, error) {
	if s.closed {
		return nil, fmt.Errorf("%w: session closed", utils.ErrContextTeardown)
	}
	return &fakePage{factory: s.factory}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakePage struct {
	factory *FakeFactory
	current FakeResponse
	loaded  bool
}

func (p *fakePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	f := p.factory
	f.mu.Lock()
	f.Visits[url]++
	var queued error
	if errs := f.Fails[url]; len(errs) > 0 {
		queued = errs[0]
		f.Fails[url] = errs[1:]
	}
	resp, ok := f.Responses[url]
	f.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if queued != nil {
		return queued
	}
	if resp.GotoErr != nil {
		return resp.GotoErr
	}
	if !ok {
		return fmt.Errorf("%w: no fake response for %s", utils.ErrTransientNavigation, url)
	}
	p.current = resp
	p.loaded = true
	return nil
}

func (p *fakePage) present(selector string) bool {
	if !p.loaded {
		return false
	}
	if p.current.Selector == nil {
		return true
	}
	return p.current.Selector[selector]
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if !p.present(selector) {
		return fmt.Errorf("%w: wait for %s: timed out", utils.ErrTransientNavigation, selector)
	}
	return nil
}

func (p *fakePage) Content(ctx context.Context, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.current.HTML, nil
}

func (p *fakePage) Has(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.present(selector), nil
}

func (p *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if !p.present(selector) {
		return fmt.Errorf("%w: click %s: not found", utils.ErrTransientNavigation, selector)
	}
	p.factory.mu.Lock()
	p.factory.Clicks = append(p.factory.Clicks, selector)
	p.factory.mu.Unlock()
	return nil
}

func (p *fakePage) Close() error { return nil }
