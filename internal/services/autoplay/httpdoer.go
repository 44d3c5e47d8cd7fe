package autoplay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/DispatchBox/internal/transport"
	"github.com/pkg/errors"
)

// HTTPDoer sends the agents' requests to a dispatcher served over HTTP.
type HTTPDoer struct {
	baseURL string
	httpc   *http.Client
}

func NewHTTPDoer(baseURL string) *HTTPDoer {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &HTTPDoer{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: transport.DefaultTimeout,
		},
	}
}

func (d *HTTPDoer) Do(ctx context.Context, method, url string, headers map[string]string, body any) (*transport.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s => failed", method, url)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+url, rd)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := d.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return &transport.Response{Status: transport.StatusAborted}, nil
		}
		return nil, errors.Wrapf(err, "%s %s => failed after %s", method, url, time.Since(started).Round(time.Millisecond))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return &transport.Response{Status: resp.StatusCode, Body: raw}, nil
}
