package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultWaitTimeout       = 10 * time.Second
)

// RenderConfig controls the headless browser renderers.
type RenderConfig struct {
	MaxParallel       int
	Headless          bool
	NavigationTimeout time.Duration
	// WaitTimeout bounds the wait for Request.WaitFor.
	WaitTimeout time.Duration
}

func (c RenderConfig) navTimeout() time.Duration {
	if c.NavigationTimeout > 0 {
		return c.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (c RenderConfig) waitTimeout() time.Duration {
	if c.WaitTimeout > 0 {
		return c.WaitTimeout
	}
	return defaultWaitTimeout
}

// slots bounds the number of concurrently open browser tabs.
type slots chan struct{}

func newSlots(n int) slots {
	if n <= 0 {
		return nil
	}
	return make(slots, n)
}

func (s slots) acquire(ctx context.Context) error {
	if s == nil {
		return nil
	}
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (s slots) release() {
	if s == nil {
		return
	}
	select {
	case <-s:
	default:
	}
}

// Chromedp renders pages in headless Chrome driven by chromedp.
type Chromedp struct {
	cfg         RenderConfig
	limiter     slots
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a renderer backed by a shared Chrome allocator. The
// browser process starts lazily on the first fetch.
func NewChromedp(cfg RenderConfig) (*Chromedp, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	headless := any(false)
	if cfg.Headless {
		headless = "new"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		limiter:     newSlots(cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Chromedp) Close() error {
	f.allocCancel()
	return nil
}

// Fetch navigates to req.URL, performs the optional click and wait, and
// returns the rendered DOM.
func (f *Chromedp) Fetch(ctx context.Context, req Request) (Page, error) {
	if err := f.limiter.acquire(ctx); err != nil {
		return Page{}, err
	}
	defer f.limiter.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.run(taskCtx, req)
	if err != nil {
		return Page{}, err
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(req.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	return Page{
		URL:        responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

func (f *Chromedp) run(ctx context.Context, req Request) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	if err := chromedp.Run(ctx, f.actions(req, &html, &finalURL)...); err != nil {
		return "", "", fmt.Errorf("chromedp run %s: %w", req.URL, err)
	}
	return html, finalURL, nil
}

func (f *Chromedp) actions(req Request, html, finalURL *string) []chromedp.Action {
	actions := []chromedp.Action{
		networkSetupAction(req),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if req.Click != "" {
		actions = append(actions, chromedp.Click(req.Click, chromedp.ByQuery, chromedp.NodeVisible))
	}
	if req.WaitFor != "" {
		actions = append(actions, f.waitVisible(req.WaitFor))
	} else {
		actions = append(actions, chromedp.Sleep(500*time.Millisecond))
	}
	return append(actions,
		chromedp.Location(finalURL),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}

func (f *Chromedp) waitVisible(selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, f.cfg.waitTimeout())
		defer cancel()
		if err := chromedp.WaitVisible(selector, chromedp.ByQuery).Do(waitCtx); err != nil {
			return fmt.Errorf("wait for %s: %w", selector, err)
		}
		return nil
	})
}

func networkSetupAction(req Request) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if req.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(req.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(req.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(req.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, cloneHeader(m.headers), m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
