package models

import "errors"

var (
	ErrDataUnavailable    = errors.New("data unavailable")
	ErrValidation         = errors.New("validation failed")
	ErrPersistence        = errors.New("persistence unavailable")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrAlertDispatch      = errors.New("alert dispatch failed")
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrJobInProgress      = errors.New("job already running")
)
