package httpclient

import (
	"net/http"
	"time"
)

// NewProbeClient creates the HTTP client used by the auth detector's network
// probe. When followRedirects is false the client surfaces the first 3xx
// response so the caller can inspect its Location header.
func NewProbeClient(timeout time.Duration, followRedirects bool) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}
