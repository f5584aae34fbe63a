package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/metrics"
)

// allowAllRobots is served in place of robots.txt when the probe never
// completes, so colly treats the marketplace as crawlable.
const allowAllRobots = "User-agent: *\nAllow: /"

var defaultProbeBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport wraps the marketplace transport. Product page requests pass
// straight through; robots.txt probes are retried on slow TLS handshakes.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
	logger  *zap.Logger
}

func newRobotsTransport(base http.RoundTripper, logger *zap.Logger) *robotsTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &robotsTransport{base: base, backoff: defaultProbeBackoff, logger: logger}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL.Host, err)
		}
		return resp, nil
	}

	var lastErr error
	for attempt := 0; attempt <= len(t.backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, fmt.Errorf("probe robots.txt on %s: %w", req.URL.Host, req.Context().Err())
			case <-time.After(t.backoff[attempt-1]):
			}
		}
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !slowHandshake(err) {
			return nil, fmt.Errorf("probe robots.txt on %s: %w", req.URL.Host, err)
		}
		lastErr = err
	}

	metrics.ObserveRobotsFallback()
	t.logger.Warn("robots.txt unreachable, assuming allow-all",
		zap.String("host", req.URL.Host),
		zap.Int("attempts", len(t.backoff)+1),
		zap.Error(lastErr),
	)
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Request:       req,
	}, nil
}

// slowHandshake reports whether err looks like a timeout rather than a refusal.
func slowHandshake(err error) bool {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &netErr) && netErr.Timeout():
		return true
	default:
		return strings.Contains(err.Error(), "tls: handshake timeout")
	}
}
