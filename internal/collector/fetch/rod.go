package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Rod renders pages through go-rod with the stealth evasions applied to every tab.
type Rod struct {
	cfg     RenderConfig
	limiter slots

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRod creates a rod renderer. The browser launches on the first fetch.
func NewRod(cfg RenderConfig) (*Rod, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	return &Rod{cfg: cfg, limiter: newSlots(cfg.MaxParallel)}, nil
}

func (f *Rod) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}
	l := launcher.New().Headless(f.cfg.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	f.launcher = l
	f.browser = browser
	return browser, nil
}

// Close shuts the browser down if it was launched.
func (f *Rod) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.launcher.Cleanup()
	f.browser, f.launcher = nil, nil
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Fetch renders req.URL in a fresh stealth tab.
func (f *Rod) Fetch(ctx context.Context, req Request) (Page, error) {
	if err := f.limiter.acquire(ctx); err != nil {
		return Page{}, err
	}
	defer f.limiter.release()

	browser, err := f.connect()
	if err != nil {
		return Page{}, err
	}
	tab, err := stealth.Page(browser)
	if err != nil {
		return Page{}, fmt.Errorf("open stealth page: %w", err)
	}
	defer func() { _ = tab.Close() }()

	start := time.Now()
	page := tab.Context(ctx).Timeout(f.cfg.navTimeout())
	if err := prepare(page, req); err != nil {
		return Page{}, err
	}
	if err := page.Navigate(req.URL); err != nil {
		return Page{}, fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return Page{}, fmt.Errorf("wait load %s: %w", req.URL, err)
	}
	if req.Click != "" {
		el, err := page.Element(req.Click)
		if err != nil {
			return Page{}, fmt.Errorf("find %s: %w", req.Click, err)
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return Page{}, fmt.Errorf("click %s: %w", req.Click, err)
		}
	}
	if req.WaitFor != "" {
		el, err := page.Timeout(f.cfg.waitTimeout()).Element(req.WaitFor)
		if err != nil {
			return Page{}, fmt.Errorf("wait for %s: %w", req.WaitFor, err)
		}
		if err := el.WaitVisible(); err != nil {
			return Page{}, fmt.Errorf("wait for %s: %w", req.WaitFor, err)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return Page{}, fmt.Errorf("read html %s: %w", req.URL, err)
	}
	finalURL := req.URL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}
	return Page{
		URL:        finalURL,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

func prepare(page *rod.Page, req Request) error {
	if req.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent}); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
	}
	if len(req.Headers) > 0 {
		pairs := make([]string, 0, len(req.Headers)*2)
		for key := range req.Headers {
			pairs = append(pairs, key, req.Headers.Get(key))
		}
		if _, err := page.SetExtraHeaders(pairs); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}
	return nil
}
