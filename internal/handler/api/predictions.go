package api

import (
	"time"

	"github.com/labstack/echo/v4"

	models "FinGuard/internal/domain/models"
	"FinGuard/internal/usecase"
	xhttp "FinGuard/pkg/http"
	xlogger "FinGuard/pkg/logger"
	"FinGuard/pkg/util"
)

// PredictionsHandler exposes the prediction ledger.
type PredictionsHandler struct {
	logger    *xlogger.Logger
	ledger    *usecase.Ledger
	validator *usecase.PerformanceValidator
	suffix    string
}

func NewPredictionsHandler(
	logger *xlogger.Logger,
	ledger *usecase.Ledger,
	validator *usecase.PerformanceValidator,
	tickerSuffix string,
) *PredictionsHandler {
	return &PredictionsHandler{logger: logger, ledger: ledger, validator: validator, suffix: tickerSuffix}
}

func (h *PredictionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/predictions")
	g.POST("", h.Record)
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
}

// Record registers an externally produced prediction.
func (h *PredictionsHandler) Record(c echo.Context) error {
	req := &models.RecordPredictionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sym, err := util.NormalizeTicker(req.Ticker, h.suffix)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	var at time.Time
	if req.PredictedAt != "" {
		t, ok := xhttp.ParseTime(req.PredictedAt)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid predicted_at %q", req.PredictedAt))
		}
		at = t
	}

	rec, err := h.validator.RegisterPrediction(c.Request().Context(), usecase.PredictionInput{
		RequestID:      req.RequestID,
		Ticker:         sym,
		PredictedAt:    at,
		PredictedValue: req.PredictedValue,
	})
	if err != nil {
		h.logger.Error("record prediction error", xlogger.String("ticker", sym), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.CreatedResponse(c, rec)
}

func (h *PredictionsHandler) List(c echo.Context) error {
	req := &models.ListPredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f := models.PredictionFilter{Limit: req.Limit}
	if req.Ticker != "" {
		sym, err := util.NormalizeTicker(req.Ticker, h.suffix)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		f.Ticker = sym
	}
	if req.Validated != "" {
		v := req.Validated == "true"
		f.Validated = &v
	}

	recs, err := h.ledger.Query(c.Request().Context(), f)
	if err != nil {
		h.logger.Error("list predictions error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if recs == nil {
		recs = []models.PredictionRecord{}
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *PredictionsHandler) Stats(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker := req.Ticker
	if ticker != "" {
		sym, err := util.NormalizeTicker(ticker, h.suffix)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		ticker = sym
	}

	stats, err := h.ledger.Stats(c.Request().Context(), ticker)
	if err != nil {
		h.logger.Error("prediction stats error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, stats)
}
