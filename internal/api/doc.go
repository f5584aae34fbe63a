// Package api hosts the HTTP server, middleware, and request handlers of the
// pricing research service. Notable routes:
//   - POST /v1/research collects sellers now and optionally stores them.
//   - GET /v1/research serves stored research, collecting again when it is
//     missing or expired.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
