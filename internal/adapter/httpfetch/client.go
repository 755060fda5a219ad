package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Options configures a Client.
type Options struct {
	Timeout         time.Duration
	MaxBodyBytes    int64
	FollowRedirects bool
	UserAgent       string
}

// Client issues single GET requests. It never retries, and by default it
// returns 3xx responses as-is instead of following them.
type Client struct {
	httpClient *http.Client
	maxBody    int64
	userAgent  string
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	hc := &http.Client{Timeout: opts.Timeout}
	if !opts.FollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Client{
		httpClient: hc,
		maxBody:    opts.MaxBodyBytes,
		userAgent:  opts.UserAgent,
	}
}

// Get fetches rawURL and reads the whole body. Any status code is returned
// without error; a transport or read failure yields a *domain.FetchError.
func (c *Client) Get(ctx context.Context, rawURL string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, &domain.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.maxBody > 0 {
		// Read one byte past the cap to detect truncation.
		body = io.LimitReader(resp.Body, c.maxBody+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Response{}, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if c.maxBody > 0 && int64(len(data)) > c.maxBody {
		return Response{}, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("body exceeds %d bytes", c.maxBody)}
	}

	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
