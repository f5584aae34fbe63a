package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// StaticConfig controls the plain HTTP fetcher.
type StaticConfig struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Static fetches pages with a single HTTP GET through colly.
type Static struct {
	cfg           StaticConfig
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewStatic builds a Static fetcher.
func NewStatic(cfg StaticConfig, logger *zap.Logger) *Static {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newRobotsTransport(newHTTPTransport(), logger.Named("static")))
	c.SetRequestTimeout(cfg.Timeout)

	return &Static{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET.
func (f *Static) Fetch(ctx context.Context, req Request) (Page, error) {
	collector := f.baseCollector.Clone()
	capture := &pageCapture{req: req, start: time.Now()}
	capture.attach(collector)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Page{}, fmt.Errorf("visit %s: %w", req.URL, err)
		}
		if capture.err != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", req.URL, capture.err)
		}
		return capture.page, nil
	}
}

// pageCapture copies the single colly response of one Fetch into a Page.
type pageCapture struct {
	req   Request
	start time.Time
	page  Page
	err   error
}

func (c *pageCapture) attach(hooks collectorHooks) {
	hooks.OnRequest(func(r *colly.Request) {
		if c.req.UserAgent != "" {
			r.Headers.Set("User-Agent", c.req.UserAgent)
		}
		for key, values := range c.req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = cloneHeader(*r.Headers)
		}
		c.page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(c.start),
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		c.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
