package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker probes an HTTP endpoint, typically an external geocoding
// provider's base URL
type HTTPChecker struct {
	name string

	// URL is the full HTTP URL to probe
	URL string

	// ExpectedStatusMin is the minimum acceptable status code (default: 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the maximum acceptable status code (default: 399)
	ExpectedStatusMax int

	// Client issues the probes and carries the timeout
	Client *http.Client
}

// NewHTTPChecker creates a named HTTP prober
func NewHTTPChecker(name, url string) *HTTPChecker {
	return &HTTPChecker{
		name:              name,
		URL:               url,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the dependency name
func (h *HTTPChecker) Name() string {
	return h.name
}

// Check performs the HTTP probe
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return result(start, false, fmt.Sprintf("building request: %v", err))
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return result(start, false, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax
	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}
	return result(start, healthy, message)
}

// WithStatusRange sets the acceptable status code range
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}
