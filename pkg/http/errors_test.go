package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestErrorForStatus(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
		code   string
	}{
		{BadRequestError("bad"), http.StatusBadRequest, "ERR_BAD_REQUEST"},
		{NotFoundError("gone"), http.StatusNotFound, "ERR_NOT_FOUND"},
		{ConflictError("busy"), http.StatusConflict, "ERR_CONFLICT"},
		{UnprocessableError("few"), http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA"},
		{TooManyRequestsError("slow down"), http.StatusTooManyRequests, "ERR_RATE_LIMITED"},
		{ServiceUnavailableError("down"), http.StatusServiceUnavailable, "ERR_UNAVAILABLE"},
		{InternalError("oops"), http.StatusInternalServerError, "ERR_INTERNAL"},
		{ErrorForStatus(http.StatusTeapot, "tea"), http.StatusTeapot, "ERR_UNKNOWN"},
	}
	for _, tc := range cases {
		if tc.err.Status != tc.status || tc.err.Code != tc.code {
			t.Fatalf("got %d/%s, want %d/%s", tc.err.Status, tc.err.Code, tc.status, tc.code)
		}
	}

	cause := errors.New("db down")
	err := ServiceUnavailableError("store").WithError(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not unwrapped")
	}
}

func TestClientStatusErrorAndRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gateway" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, " missing ")
	}))
	defer srv.Close()

	c := NewClient()
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound || se.Body != "missing" {
		t.Fatalf("err = %v", err)
	}
	if Retryable(err) {
		t.Fatalf("404 must not be retryable")
	}

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL + "/gateway"}, nil)
	if !Retryable(err) {
		t.Fatalf("502 should be retryable: %v", err)
	}
	if Retryable(context.Canceled) || Retryable(nil) {
		t.Fatalf("cancellation and nil are not retryable")
	}
}
