package autoplay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BearBump/DispatchBox/internal/transport"
)

// Doer sends one API request. *transport.Bus implements it.
type Doer interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body any) (*transport.Response, error)
}

// StatusError is a reply other than 200.
type StatusError struct {
	Method string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s => %d", e.Method, e.URL, e.Status)
}

// Client calls the dispatch API as one identity.
type Client struct {
	doer  Doer
	token string
}

func NewClient(d Doer, token string) *Client {
	return &Client{doer: d, token: token}
}

func (c *Client) call(ctx context.Context, method, url string, in, out any) error {
	resp, err := c.doer.Do(ctx, method, url, map[string]string{"authorization": "Bearer " + c.token}, in)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return &StatusError{Method: method, URL: url, Status: resp.Status}
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.call(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) post(ctx context.Context, url string, in, out any) error {
	return c.call(ctx, http.MethodPost, url, in, out)
}
