package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned when a server answers with a non-200 status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status: %s", e.URL, e.Status)
}

// Permanent reports whether retrying the request is pointless (4xx other than 408/429).
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Get performs a GET request with the given headers and returns the response
// when the status is 200. The caller closes the body.
func Get(ctx context.Context, c *http.Client, url string, headers map[string]string) (*http.Response, error) {
	if c == nil {
		c = Default()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// GetJSON decodes the JSON body of a GET request into out.
func GetJSON(ctx context.Context, c *http.Client, url string, headers map[string]string, out any) error {
	resp, err := Get(ctx, c, url, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetBytes returns the body of a GET request, capped at limit bytes.
func GetBytes(ctx context.Context, c *http.Client, url string, headers map[string]string, limit int64) ([]byte, error) {
	resp, err := Get(ctx, c, url, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
