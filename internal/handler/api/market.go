package api

import (
	"time"

	"github.com/labstack/echo/v4"

	models "FinGuard/internal/domain/models"
	"FinGuard/internal/service/ratelimit"
	"FinGuard/internal/usecase"
	xhttp "FinGuard/pkg/http"
	xlogger "FinGuard/pkg/logger"
	"FinGuard/pkg/util"
)

// MarketHandler serves market data and forecasts.
type MarketHandler struct {
	logger    *xlogger.Logger
	fetcher   usecase.MarketFetcher
	predictor *usecase.PredictionService
	history   *usecase.HistoryService
	limiter   *ratelimit.Limiter
	suffix    string
}

// NewMarketHandler builds the handler. limiter may be nil to disable the
// per-client predict limit.
func NewMarketHandler(
	logger *xlogger.Logger,
	fetcher usecase.MarketFetcher,
	predictor *usecase.PredictionService,
	history *usecase.HistoryService,
	limiter *ratelimit.Limiter,
	tickerSuffix string,
) *MarketHandler {
	return &MarketHandler{
		logger:    logger,
		fetcher:   fetcher,
		predictor: predictor,
		history:   history,
		limiter:   limiter,
		suffix:    tickerSuffix,
	}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/fetch", h.Fetch)
	g.POST("/predict", h.Predict)
	g.GET("/history", h.History)
}

func (h *MarketHandler) Fetch(c echo.Context) error {
	req := &models.FetchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sym, err := util.NormalizeTicker(req.Ticker, h.suffix)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	var asOf time.Time
	if req.AsOf != "" {
		t, ok := xhttp.ParseTime(req.AsOf)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid as_of %q", req.AsOf))
		}
		asOf = t
	}

	res, err := h.fetcher.Fetch(c.Request().Context(), sym, req.Days, asOf)
	if err != nil {
		h.logger.Error("fetch usecase error", xlogger.String("ticker", sym), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) Predict(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()+":predict") {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
	}
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.predictor.Predict(c.Request().Context(), req.Ticker, req.Days)
	if err != nil {
		h.logger.Error("predict usecase error", xlogger.String("ticker", req.Ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start, end, aerr := parseRange(req.Start, req.End)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	rows, err := h.history.Query(c.Request().Context(), req.Ticker, start, end)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.String("ticker", req.Ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func parseRange(start, end string) (time.Time, time.Time, *xhttp.AppError) {
	var from, to time.Time
	if start != "" {
		t, ok := xhttp.ParseTime(start)
		if !ok {
			return from, to, xhttp.BadRequestErrorf("invalid start %q", start)
		}
		from = t
	}
	if end != "" {
		t, ok := xhttp.ParseTime(end)
		if !ok {
			return from, to, xhttp.BadRequestErrorf("invalid end %q", end)
		}
		to = t
	}
	return from, to, nil
}
