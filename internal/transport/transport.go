// Package transport carries API requests between in-process clients and the
// dispatcher. Requests and replies are correlated by a monotonically increasing
// id; every call has a deadline after which the caller gets StatusAborted.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultTimeout = 10 * time.Second
	// StatusAborted means the caller stopped waiting. The handler may still
	// have committed its side effects, so the outcome is unknown.
	StatusAborted = 499
)

var ErrClosed = errors.New("bus closed")

type Message struct {
	ID      uint64
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

type Reply struct {
	Status int
	Body   []byte
}

type Handler func(ctx context.Context, m Message) Reply

type Response struct {
	ID     uint64
	Status int
	Body   json.RawMessage
}

// Decode unmarshals the reply body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(r.Body, v), "decode reply")
}

type Bus struct {
	timeout  time.Duration
	requests chan Message
	nextID   atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Reply

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a bus whose calls time out after timeout (DefaultTimeout when zero).
func New(timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bus{
		timeout:  timeout,
		requests: make(chan Message, 64),
		pending:  make(map[uint64]chan Reply),
		closed:   make(chan struct{}),
	}
}

// Serve feeds requests to h until ctx is done or the bus is closed. Every
// request runs in its own goroutine under ctx, not under the caller's context.
func (b *Bus) Serve(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return ErrClosed
		case m := <-b.requests:
			go func(m Message) {
				b.deliver(m.ID, h(ctx, m))
			}(m)
		}
	}
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

func (b *Bus) deliver(id uint64, r Reply) {
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if ok {
		ch <- r
	}
}

func (b *Bus) forget(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Do sends a request with the bus's default deadline.
func (b *Bus) Do(ctx context.Context, method, url string, headers map[string]string, body any) (*Response, error) {
	return b.DoTimeout(ctx, b.timeout, method, url, headers, body)
}

// DoTimeout sends a request and waits for its reply at most timeout. A missed
// deadline or a cancelled ctx yields StatusAborted rather than an error.
func (b *Bus) DoTimeout(ctx context.Context, timeout time.Duration, method, url string, headers map[string]string, body any) (*Response, error) {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return nil, errors.Wrapf(err, "%s %s => failed", method, url)
		}
	}

	id := b.nextID.Add(1)
	replies := make(chan Reply, 1)
	b.mu.Lock()
	b.pending[id] = replies
	b.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m := Message{ID: id, Method: method, URL: url, Headers: headers, Body: raw}
	select {
	case b.requests <- m:
	case <-b.closed:
		b.forget(id)
		return nil, errors.Wrapf(ErrClosed, "%s %s => failed", method, url)
	case <-callCtx.Done():
		b.forget(id)
		return &Response{ID: id, Status: StatusAborted}, nil
	}

	select {
	case r := <-replies:
		return &Response{ID: id, Status: r.Status, Body: r.Body}, nil
	case <-b.closed:
		b.forget(id)
		return nil, errors.Wrapf(ErrClosed, "%s %s => failed", method, url)
	case <-callCtx.Done():
		b.forget(id)
		return &Response{ID: id, Status: StatusAborted}, nil
	}
}
