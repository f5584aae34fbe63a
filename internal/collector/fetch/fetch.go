// Package fetch retrieves product pages for collectors, either as plain HTTP
// responses or as DOM snapshots rendered by a headless browser.
package fetch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// Browser engines accepted by NewRenderer.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Request describes one page fetch.
type Request struct {
	URL       string
	UserAgent string
	Headers   http.Header
	// Click is a CSS selector clicked once the page is ready. Rendered fetches only.
	Click string
	// WaitFor is a CSS selector that must be visible before the DOM is captured.
	// Rendered fetches only.
	WaitFor string
}

// Page is the outcome of a fetch.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Page, error)
}

// Raw converts the page into the archived representation.
func (p Page) Raw() research.RawPage {
	contentType := ""
	if p.Headers != nil {
		contentType = p.Headers.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	return research.RawPage{
		URL:         p.URL,
		ContentType: contentType,
		Body:        append([]byte(nil), p.Body...),
	}
}

// NewRenderer builds the browser renderer named by engine. Renderers own a
// browser process and implement io.Closer.
func NewRenderer(engine string, cfg RenderConfig) (Fetcher, error) {
	switch engine {
	case "", EngineChromedp:
		r, err := NewChromedp(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	case EngineRod:
		r, err := NewRod(cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}
}

// UserAgents hands out user agents picked at random from a fixed list.
type UserAgents struct {
	mu     sync.Mutex
	agents []string
	intn   func(int) int
}

// NewUserAgents returns a rotation over agents. Empty entries are dropped.
func NewUserAgents(agents ...string) *UserAgents {
	kept := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != "" {
			kept = append(kept, a)
		}
	}
	return &UserAgents{agents: kept, intn: rand.IntN}
}

// Pick returns a random user agent, or "" when the list is empty.
func (u *UserAgents) Pick() string {
	if u == nil || len(u.agents) == 0 {
		return ""
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.agents[u.intn(len(u.agents))]
}

// Without returns a rotation that excludes agents starting with any of prefixes.
// The receiver is returned unchanged when the filter would leave nothing.
func (u *UserAgents) Without(prefixes ...string) *UserAgents {
	if u == nil {
		return nil
	}
	kept := make([]string, 0, len(u.agents))
outer:
	for _, a := range u.agents {
		for _, p := range prefixes {
			if strings.HasPrefix(a, p) {
				continue outer
			}
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		return u
	}
	return &UserAgents{agents: kept, intn: u.intn}
}

// Len reports how many user agents are in the rotation.
func (u *UserAgents) Len() int {
	if u == nil {
		return 0
	}
	return len(u.agents)
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}
