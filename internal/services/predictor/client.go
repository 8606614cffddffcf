package predictor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	xhttp "FinGuard/pkg/http"
)

type predictRequest struct {
	Ticker string      `json:"ticker"`
	Window [][]float64 `json:"window"`
}

type predictResponse struct {
	Prediction *float64 `json:"prediction"`
}

// Client calls the model service. It implements service.Predictor.
type Client struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
}

// NewClient builds a predictor client for baseURL. attempts <= 1 disables retries.
func NewClient(baseURL string, timeout time.Duration, attempts int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: attempts,
	}
}

// Predict posts the normalized window and returns the normalized next close.
func (c *Client) Predict(ctx context.Context, ticker string, matrix [][]float64) (float64, error) {
	var resp predictResponse
	if err := c.postJSONWithRetry(ctx, "/predict", predictRequest{Ticker: ticker, Window: matrix}, &resp); err != nil {
		return 0, err
	}
	if resp.Prediction == nil {
		return 0, fmt.Errorf("predict %s: response has no prediction", ticker)
	}
	if v := *resp.Prediction; math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("predict %s: non-finite prediction", ticker)
	}
	return *resp.Prediction, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("predictor url not configured")
	}
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + path,
		Body:   payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	if c.attempts <= 1 {
		return c.postJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= c.attempts; i++ {
		if err = c.postJSON(ctx, path, payload, dest); err == nil {
			return nil
		}
		if i == c.attempts || !xhttp.Retryable(err) {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
