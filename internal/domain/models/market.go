package models

import (
	"math"
	"time"
)

// Provenance names the source that actually supplied a FetchResult.
type Provenance string

const (
	ProvenancePrimaryAPI       Provenance = "primary_api"
	ProvenanceSecondaryLibrary Provenance = "secondary_library"
	ProvenanceLocalCache       Provenance = "local_cache"
	ProvenanceStaticFallback   Provenance = "static_fallback"
)

// Remote reports whether the data came from a live provider.
func (p Provenance) Remote() bool {
	return p == ProvenancePrimaryAPI || p == ProvenanceSecondaryLibrary
}

// OHLCV is one daily bar.
type OHLCV struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HasNaN reports NaN or infinite values in any column.
func (r OHLCV) HasNaN() bool {
	for _, v := range [...]float64{r.Open, r.High, r.Low, r.Close, r.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// Valid reports whether the bar has positive prices and high >= low.
func (r OHLCV) Valid() bool {
	if r.Open <= 0 || r.High <= 0 || r.Low <= 0 || r.Close <= 0 {
		return false
	}
	return r.High >= r.Low
}

// FetchResult is an ordered window of bars, oldest first.
type FetchResult struct {
	Ticker     string     `json:"ticker"`
	Rows       []OHLCV    `json:"rows"`
	Provenance Provenance `json:"provenance"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Closes returns the close column.
func (f FetchResult) Closes() []float64 {
	out := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r.Close
	}
	return out
}

// Matrix returns rows as [open, high, low, close, volume].
func (f FetchResult) Matrix() [][]float64 {
	out := make([][]float64, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = []float64{r.Open, r.High, r.Low, r.Close, r.Volume}
	}
	return out
}

// PricePoint is a dated observation fed to the drift detector.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
