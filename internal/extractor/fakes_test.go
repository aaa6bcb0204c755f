package extractor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/maltedev/price-tracker/internal/browser"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ http.Header) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(body), nil
}

type fakeElement struct {
	text       string
	appearsAt  int
	attributes map[string]string
}

// fakePage answers selector queries from a fixed table. An element with
// appearsAt > 0 is only visible once Count has been polled that many times.
type fakePage struct {
	mu       sync.Mutex
	elements map[string]fakeElement
	title    string
	polls    map[string]int
	// attrMisses counts Attr calls for absent elements, which block on a real page.
	attrMisses int
}

func newFakePage(title string, elements map[string]fakeElement) *fakePage {
	return &fakePage{elements: elements, title: title, polls: map[string]int{}}
}

func (p *fakePage) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.polls[selector]++
	el, ok := p.elements[selector]
	if !ok || p.polls[selector] <= el.appearsAt {
		return 0, nil
	}
	return 1, nil
}

func (p *fakePage) Text(selector string) (string, error) {
	el, ok := p.elements[selector]
	if !ok {
		return "", errors.New("no element")
	}
	return el.text, nil
}

func (p *fakePage) Attr(selector, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el, ok := p.elements[selector]
	if !ok {
		p.attrMisses++
		return "", errors.New("no element")
	}
	return el.attributes[name], nil
}

func (p *fakePage) Title() (string, error) {
	return p.title, nil
}

type fakeRenderer struct {
	page    browser.Page
	err     error
	renders int
	panics  bool
}

func (r *fakeRenderer) Render(_ context.Context, _ string, fn func(browser.Page) error) error {
	r.renders++
	if r.err != nil {
		return r.err
	}
	if r.panics {
		panic("renderer crashed")
	}
	return fn(r.page)
}

var fastWait = WaitOptions{Timeout: 40 * time.Millisecond, PollInterval: 5 * time.Millisecond}
