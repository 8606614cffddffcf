package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	models "FinGuard/internal/domain/models"
	"FinGuard/internal/usecase"
	xhttp "FinGuard/pkg/http"
	xlogger "FinGuard/pkg/logger"
	"FinGuard/pkg/util"
)

// HealthCheck probes one backend.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status         string            `json:"status"`
	LedgerDegraded bool              `json:"ledger_degraded"`
	Backends       map[string]string `json:"backends"`
	AlertClients   int               `json:"alert_clients"`
	CheckedAt      time.Time         `json:"checked_at"`
}

// PerformanceView pairs an on-demand snapshot with the MAPE trend.
type PerformanceView struct {
	Snapshot models.PerformanceSnapshot `json:"snapshot"`
	Trend    models.TrendReport         `json:"trend"`
}

// MonitoringHandler exposes jobs, performance, drift and alerts.
type MonitoringHandler struct {
	logger    *xlogger.Logger
	jobs      *usecase.MonitoringJobs
	validator *usecase.PerformanceValidator
	drift     *usecase.DriftDetector
	alerts    *usecase.AlertDispatcher
	ledger    *usecase.Ledger
	feed      http.Handler
	checks    []HealthCheck
	suffix    string
}

// NewMonitoringHandler builds the handler. feed serves /ws/alerts when set.
func NewMonitoringHandler(
	logger *xlogger.Logger,
	jobs *usecase.MonitoringJobs,
	validator *usecase.PerformanceValidator,
	drift *usecase.DriftDetector,
	alerts *usecase.AlertDispatcher,
	ledger *usecase.Ledger,
	feed http.Handler,
	checks []HealthCheck,
	tickerSuffix string,
) *MonitoringHandler {
	return &MonitoringHandler{
		logger:    logger,
		jobs:      jobs,
		validator: validator,
		drift:     drift,
		alerts:    alerts,
		ledger:    ledger,
		feed:      feed,
		checks:    checks,
		suffix:    tickerSuffix,
	}
}

func (h *MonitoringHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)

	g.POST("/jobs/validation", h.RunValidation)
	g.POST("/jobs/drift", h.RunDriftCheck)
	g.GET("/jobs/summaries", h.Summaries)

	g.GET("/performance", h.Performance)

	g.GET("/drift/reports", h.DriftReports)
	g.GET("/drift/summary", h.DriftSummary)
	g.GET("/drift/reference", h.DriftReference)
	g.GET("/drift/distribution", h.PredictionDistribution)

	g.GET("/alerts", h.Alerts)
	g.GET("/alerts/summary", h.AlertSummary)

	if h.feed != nil {
		e.GET("/ws/alerts", echo.WrapHandler(h.feed))
	}
}

func (h *MonitoringHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out := HealthStatus{
		Status:    "ok",
		Backends:  make(map[string]string, len(h.checks)),
		CheckedAt: time.Now().UTC(),
	}
	if h.ledger != nil && h.ledger.Degraded() {
		out.LedgerDegraded = true
		out.Status = "degraded"
	}
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			out.Backends[chk.Name] = err.Error()
			out.Status = "degraded"
			continue
		}
		out.Backends[chk.Name] = "ok"
	}
	if cl, ok := h.feed.(interface{ Clients() int }); ok {
		out.AlertClients = cl.Clients()
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *MonitoringHandler) RunValidation(c echo.Context) error {
	req := &models.ValidationJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.jobs.RunValidation(c.Request().Context(), req.DaysBack)
	if err != nil {
		h.logger.Error("validation job error", xlogger.Int("days_back", req.DaysBack), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *MonitoringHandler) RunDriftCheck(c echo.Context) error {
	run, err := h.jobs.RunDriftCheck(c.Request().Context())
	if err != nil {
		h.logger.Error("drift job error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *MonitoringHandler) Summaries(c echo.Context) error {
	req := &models.LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	list, err := h.jobs.Summaries(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("run summaries error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *MonitoringHandler) Performance(c echo.Context) error {
	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker, aerr := h.optionalTicker(req.Ticker)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	snap, err := h.validator.Metrics(c.Request().Context(), ticker, req.WindowN)
	if err != nil {
		h.logger.Error("performance usecase error", xlogger.String("ticker", ticker), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, PerformanceView{Snapshot: snap, Trend: h.validator.Trend(ticker, req.Days)})
}

func (h *MonitoringHandler) DriftReports(c echo.Context) error {
	req := &models.LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	reports := h.drift.History("", req.Limit)
	if reports == nil {
		reports = []models.DriftReport{}
	}
	return xhttp.ListResponse(c, reports, int64(len(reports)))
}

func (h *MonitoringHandler) DriftSummary(c echo.Context) error {
	req := &models.DriftSummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.drift.Summary(req.N))
}

func (h *MonitoringHandler) DriftReference(c echo.Context) error {
	req := &models.TickerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if strings.TrimSpace(req.Ticker) == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("ticker is required"))
	}
	ticker, aerr := h.optionalTicker(req.Ticker)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	ref, err := h.drift.Reference(c.Request().Context(), ticker)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, ref)
}

// PredictionDistribution describes the latest predicted values and their
// IQR outliers.
func (h *MonitoringHandler) PredictionDistribution(c echo.Context) error {
	req := &models.DistributionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker, aerr := h.optionalTicker(req.Ticker)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	recs, err := h.ledger.Query(c.Request().Context(), models.PredictionFilter{Ticker: ticker, Limit: req.Limit})
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	vals := make([]float64, 0, len(recs))
	for _, r := range recs {
		vals = append(vals, r.PredictedValue)
	}
	out, err := h.drift.PredictionDistribution(vals)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *MonitoringHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	list := h.alerts.Recent(req.Hours)
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *MonitoringHandler) AlertSummary(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.alerts.Summary())
}

func (h *MonitoringHandler) optionalTicker(raw string) (string, *xhttp.AppError) {
	if raw == "" {
		return "", nil
	}
	sym, err := util.NormalizeTicker(raw, h.suffix)
	if err != nil {
		return "", xhttp.BadRequestError(err.Error())
	}
	return sym, nil
}
