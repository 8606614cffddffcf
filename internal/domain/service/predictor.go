package service

import "context"

// Predictor wraps the external forecasting model. The matrix is already
// min-max normalized; the returned value is on the same normalized scale.
type Predictor interface {
	Predict(ctx context.Context, ticker string, matrix [][]float64) (float64, error)
}
