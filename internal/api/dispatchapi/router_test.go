package dispatchapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BearBump/DispatchBox/internal/errs"
	"github.com/BearBump/DispatchBox/internal/transport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func echo(name string) HandlerFunc {
	return func(ctx context.Context, req *Request) (Response, error) {
		return Response{Body: map[string]any{"handler": name, "params": req.Params}}, nil
	}
}

func TestRouter_FirstMatchWins(t *testing.T) {
	r := NewRouter()
	r.Get("/orders/available", echo("available"))
	r.Get("/orders/:id", echo("byID"))
	r.Get("/orders/:id/routes/:type", echo("route"))

	resp := r.Dispatch(context.Background(), "GET", "/orders/available", nil, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "available", resp.Body.(map[string]any)["handler"])

	resp = r.Dispatch(context.Background(), "get", "/orders/7/routes/actual?x=1", nil, nil)
	require.Equal(t, "route", resp.Body.(map[string]any)["handler"])
	require.Equal(t, map[string]string{"id": "7", "type": "actual"}, resp.Body.(map[string]any)["params"])

	// registration order matters: a later generic pattern never shadows an earlier one
	r2 := NewRouter()
	r2.Get("/orders/:id", echo("byID"))
	r2.Get("/orders/available", echo("available"))
	resp = r2.Dispatch(context.Background(), "GET", "/orders/available", nil, nil)
	require.Equal(t, "byID", resp.Body.(map[string]any)["handler"])
}

func TestRouter_NoMatch(t *testing.T) {
	r := NewRouter()
	r.Get("/orders/:id", echo("byID"))

	for _, tc := range []struct{ method, url string }{
		{"GET", "/orders"},
		{"GET", "/orders/1/extra"},
		{"POST", "/orders/1"},
		{"GET", "/orders//"},
	} {
		resp := r.Dispatch(context.Background(), tc.method, tc.url, nil, nil)
		require.Equal(t, http.StatusNotFound, resp.Status, tc.url)
		require.Nil(t, resp.Body)
	}
}

func TestRouter_QueryAndBody(t *testing.T) {
	r := NewRouter()
	r.Post("/echo", func(ctx context.Context, req *Request) (Response, error) {
		var in struct {
			Name string `json:"name"`
		}
		if err := decode(req, &in); err != nil {
			return Response{}, err
		}
		return Response{Status: http.StatusCreated, Body: in.Name + req.Query.Get("suffix")}, nil
	})

	resp := r.Dispatch(context.Background(), "POST", "/echo?suffix=!", nil, []byte(`{"name":"ann"}`))
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, "ann!", resp.Body)

	resp = r.Dispatch(context.Background(), "POST", "/echo", nil, []byte(`{"name":`))
	require.Equal(t, http.StatusBadRequest, resp.Status)
	require.False(t, resp.Body.(ErrorBody).OK)
}

func TestRouter_ErrorsAndPanics(t *testing.T) {
	r := NewRouter()
	r.Get("/boom", func(ctx context.Context, req *Request) (Response, error) {
		panic("kaboom")
	})
	r.Get("/fail", func(ctx context.Context, req *Request) (Response, error) {
		return Response{}, errors.New("disk on fire")
	})
	r.Get("/busy", func(ctx context.Context, req *Request) (Response, error) {
		return Response{}, errors.Wrap(errs.NotApplied("order %d is taken", 3), "accept")
	})

	resp := r.Dispatch(context.Background(), "GET", "/boom", nil, nil)
	require.Equal(t, http.StatusInternalServerError, resp.Status)
	require.Equal(t, "kaboom", resp.Body)

	resp = r.Dispatch(context.Background(), "GET", "/fail", nil, nil)
	require.Equal(t, http.StatusInternalServerError, resp.Status)
	require.Equal(t, "disk on fire", resp.Body)

	resp = r.Dispatch(context.Background(), "GET", "/busy", nil, nil)
	require.Equal(t, http.StatusConflict, resp.Status)
	require.Equal(t, ErrorBody{OK: false, Error: "accept: not applied: order 3 is taken"}, resp.Body)
}

func TestFromError(t *testing.T) {
	cases := map[int]error{
		http.StatusBadRequest:          errs.Invalid("x"),
		http.StatusForbidden:           errs.Forbidden("x"),
		http.StatusNotFound:            errs.NotFound("order", 1),
		http.StatusConflict:            errs.NotApplied("x"),
		http.StatusBadGateway:          errs.Upstream("x"),
		http.StatusInternalServerError: errors.New("x"),
	}
	for status, err := range cases {
		require.Equal(t, status, FromError(err).Status, err.Error())
	}
}

func TestAuthenticate(t *testing.T) {
	r := NewRouter()
	r.Use(Authenticate)
	r.Get("/whoami", func(ctx context.Context, req *Request) (Response, error) {
		return Response{Body: *req.Auth}, nil
	})
	drivers := r.Group("/driver", RequireRole(RoleDriver))
	drivers.Get("/self", func(ctx context.Context, req *Request) (Response, error) {
		return Response{Body: req.Auth.ID}, nil
	})

	for _, h := range []string{"", "Bearer", "Bearer admin:1", "Bearer driver:", "Bearer driver:x", "Basic driver:1", "Bearer driver:1 "} {
		resp := r.Dispatch(context.Background(), "GET", "/whoami", map[string]string{"Authorization": h}, nil)
		require.Equal(t, http.StatusForbidden, resp.Status, h)
	}

	resp := r.Dispatch(context.Background(), "GET", "/whoami", map[string]string{"Authorization": "Bearer   manager:12"}, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, Identity{Role: RoleManager, ID: 12}, resp.Body)

	resp = r.Dispatch(context.Background(), "GET", "/driver/self", map[string]string{"authorization": "Bearer manager:12"}, nil)
	require.Equal(t, http.StatusForbidden, resp.Status)

	resp = r.Dispatch(context.Background(), "GET", "/driver/self", map[string]string{"authorization": "Bearer driver:5"}, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, int64(5), resp.Body)

	// unmatched paths skip the middleware chain entirely
	resp = r.Dispatch(context.Background(), "GET", "/nowhere", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.Status)
}

func TestRouter_ServeHTTP(t *testing.T) {
	r := NewRouter()
	r.Use(Authenticate)
	r.Post("/items/:id", func(ctx context.Context, req *Request) (Response, error) {
		return Response{Body: map[string]string{"id": req.Params["id"], "body": string(req.Body)}}, nil
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/items/9", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer client:1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Equal(t, map[string]string{"id": "9", "body": `{"a":1}`}, got)

	res, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	b, _ := io.ReadAll(res.Body)
	require.Empty(t, b)
}

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("37.8,55.9~37.4,55.6")
	require.NoError(t, err)
	require.Equal(t, 37.4, b.Min[0])
	require.Equal(t, 55.9, b.Max[1])

	_, err = parseBBox("37.8,55.9")
	require.True(t, errors.Is(err, errs.ErrInvalid))
	_, err = parsePoint("a,b")
	require.True(t, errors.Is(err, errs.ErrInvalid))
}

func TestRouter_ServeMessage(t *testing.T) {
	r := NewRouter()
	r.Get("/id", func(ctx context.Context, req *Request) (Response, error) {
		return Response{Body: RequestIDFromContext(ctx)}, nil
	})

	reply := r.ServeMessage(context.Background(), transport.Message{ID: 42, Method: "GET", URL: "/id"})
	require.Equal(t, http.StatusOK, reply.Status)
	require.JSONEq(t, "42", string(reply.Body))
}
