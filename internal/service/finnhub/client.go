package finnhub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	"FinGuard/internal/service/ratelimit"
	xhttp "FinGuard/pkg/http"
)

type candleResponse struct {
	S string    `json:"s"` // "ok" or "no_data"
	T []int64   `json:"t"`
	O []float64 `json:"o"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	C []float64 `json:"c"`
	V []float64 `json:"v"`
}

// Client reads daily candles from the Finnhub REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
}

var _ drepo.SourceClient = (*Client)(nil)

// New creates a Finnhub candle source.
func New(apiKey, baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithHeader("X-Finnhub-Token", apiKey)),
		limiter: limiter,
	}
}

func (c *Client) Name() models.Provenance { return models.ProvenanceSecondaryLibrary }

// FetchDaily returns daily candles between from and to, oldest first.
func (c *Client) FetchDaily(ctx context.Context, ticker string, from, to time.Time, _ int) ([]models.OHLCV, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("finnhub: api key not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "finnhub"); err != nil {
			return nil, err
		}
	}

	var resp candleResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/stock/candle",
		QueryParams: map[string][]string{
			"symbol":     {ticker},
			"resolution": {"D"},
			"from":       {strconv.FormatInt(from.Unix(), 10)},
			"to":         {strconv.FormatInt(to.Unix(), 10)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("finnhub candle %s: %w", ticker, err)
	}
	if resp.S != "ok" {
		return nil, fmt.Errorf("finnhub candle %s: status %q", ticker, resp.S)
	}
	n := len(resp.T)
	if len(resp.O) != n || len(resp.H) != n || len(resp.L) != n || len(resp.C) != n || len(resp.V) != n {
		return nil, fmt.Errorf("finnhub candle %s: ragged columns", ticker)
	}

	out := make([]models.OHLCV, n)
	for i := range resp.T {
		out[i] = models.OHLCV{
			Date:   time.Unix(resp.T[i], 0).UTC(),
			Open:   resp.O[i],
			High:   resp.H[i],
			Low:    resp.L[i],
			Close:  resp.C[i],
			Volume: resp.V[i],
		}
	}
	return out, nil
}
