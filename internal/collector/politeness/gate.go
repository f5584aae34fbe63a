// Package politeness spaces out page fetches per host according to the
// crawl-delay hint published in each host's robots.txt.
package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/pricing-research/internal/metrics"
)

// DefaultCrawlDelay applies when a host publishes no crawl-delay hint.
const DefaultCrawlDelay = time.Second

// Config controls Gate behavior.
type Config struct {
	// UserAgent selects the robots.txt group whose crawl-delay is honored.
	UserAgent string
	// DefaultDelay is used when robots.txt is missing, unreachable or silent.
	DefaultDelay time.Duration
	// RespectRobots disables robots.txt lookups when false; DefaultDelay still applies.
	RespectRobots bool
	// Client fetches robots.txt. A client with a 10s timeout is used when nil.
	Client *http.Client
}

// Gate enforces one fetch per crawl-delay interval for every host.
type Gate struct {
	cfg    Config
	client *http.Client
	delays sync.Map

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	logger *zap.Logger
}

// New creates a Gate.
func New(cfg Config, logger *zap.Logger) *Gate {
	if cfg.DefaultDelay < 0 {
		cfg.DefaultDelay = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		cfg:      cfg,
		client:   client,
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.Named("politeness"),
	}
}

// CrawlDelay returns the delay to keep between fetches to the host of rawURL.
// The robots.txt lookup happens once per host.
func (g *Gate) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return g.cfg.DefaultDelay
	}
	if !g.cfg.RespectRobots {
		return g.cfg.DefaultDelay
	}
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := g.delays.Load(hostKey); ok {
		if delay, ok := cached.(time.Duration); ok {
			return delay
		}
	}

	delay := g.cfg.DefaultDelay
	data, err := g.load(ctx, parsed)
	switch {
	case err != nil:
		g.logger.Warn("robots fetch failed; using default crawl delay",
			zap.String("host", parsed.Host),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	default:
		if group := data.FindGroup(g.cfg.UserAgent); group != nil && group.CrawlDelay > 0 {
			delay = group.CrawlDelay
		}
	}
	g.delays.Store(hostKey, delay)
	return delay
}

// Wait blocks until the host of rawURL may be fetched again.
func (g *Gate) Wait(ctx context.Context, rawURL string) error {
	domain := metrics.SanitizeSite(rawURL)
	limiter := g.limiter(ctx, domain, rawURL)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("crawl delay wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveCrawlDelay(domain, waited)
	}
	return nil
}

func (g *Gate) limiter(ctx context.Context, domain, rawURL string) *rate.Limiter {
	g.mu.Lock()
	limiter, ok := g.limiters[domain]
	g.mu.Unlock()
	if ok {
		return limiter
	}

	delay := g.CrawlDelay(ctx, rawURL)
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.limiters[domain]; ok {
		return existing
	}
	limiter = rate.NewLimiter(limit, 1)
	g.limiters[domain] = limiter
	return limiter
}

func (g *Gate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	if robotsURL.Scheme == "" {
		robotsURL.Scheme = "https"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}
