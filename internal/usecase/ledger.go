package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	"FinGuard/internal/services/stats"
	applogger "FinGuard/pkg/logger"
)

const (
	backendPrimary  = "postgres"
	backendFallback = "sqlite"
)

type LedgerConfig struct {
	ProbeInterval   time.Duration
	MirrorTimeout   time.Duration
	BackfillTimeout time.Duration
	MirrorQueue     int
}

type mirrorJob struct {
	op      string
	timeout time.Duration
	fn      func(context.Context) error
}

// pendingSync is a record the embedded store holds but the primary may not.
type pendingSync struct {
	rec        models.PredictionRecord
	validation *models.Validation
	version    int
}

// Ledger persists predictions to the networked store and falls back to the
// embedded one when it is unreachable. Successful primary writes are mirrored
// to the embedded store by a single worker, in call order. Records written
// while degraded are served alongside primary results and copied into the
// primary once it recovers.
type Ledger struct {
	primary  drepo.PredictionStore
	fallback drepo.PredictionStore
	cfg      LedgerConfig
	metrics  drepo.Metrics
	l        *applogger.Logger
	now      func() time.Time

	mu        sync.Mutex
	degraded  bool
	lastProbe time.Time
	unsynced  map[string]pendingSync

	queue     chan mirrorJob
	mirrors   sync.WaitGroup
	closeOnce sync.Once
}

// NewLedger builds a Ledger. primary may be nil, in which case only the
// embedded store is used and the ledger never reports degraded.
func NewLedger(
	primary drepo.PredictionStore,
	fallback drepo.PredictionStore,
	cfg LedgerConfig,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *Ledger {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = 5 * time.Second
	}
	if cfg.BackfillTimeout <= 0 {
		cfg.BackfillTimeout = time.Minute
	}
	if cfg.MirrorQueue <= 0 {
		cfg.MirrorQueue = 1024
	}
	lg := &Ledger{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		metrics:  metrics,
		l:        l,
		now:      time.Now,
		unsynced: make(map[string]pendingSync),
		queue:    make(chan mirrorJob, cfg.MirrorQueue),
	}
	go lg.runMirrors()
	return lg
}

// Init creates both schemas. A primary failure starts the ledger degraded.
func (lg *Ledger) Init(ctx context.Context) error {
	if err := lg.fallback.Init(ctx); err != nil {
		return fmt.Errorf("init embedded ledger: %w", err)
	}
	if lg.primary == nil {
		return nil
	}
	if err := lg.primary.Init(ctx); err != nil {
		lg.markDegraded("init", err)
	}
	return nil
}

// Degraded reports whether the embedded store is currently serving.
func (lg *Ledger) Degraded() bool {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	return lg.degraded
}

func (lg *Ledger) Record(ctx context.Context, rec models.PredictionRecord) error {
	if rec.RequestID == "" || rec.Ticker == "" {
		return fmt.Errorf("request_id and ticker required: %w", models.ErrValidation)
	}
	rec.PredictedAt = rec.PredictedAt.UTC()

	var primaryErr error
	if lg.usePrimary() {
		primaryErr = lg.primary.Record(ctx, rec)
		lg.observe(backendPrimary, "record", primaryErr)
		if primaryErr == nil {
			lg.markHealthy()
			lg.refreshUnsynced(rec)
			lg.mirror("record", func(mctx context.Context) error {
				return lg.fallback.Record(mctx, rec)
			})
			return nil
		}
		lg.markDegraded("record", primaryErr)
	}

	err := lg.fallback.Record(ctx, rec)
	lg.observe(backendFallback, "record", err)
	if err != nil {
		return lg.persistenceErr("record", primaryErr, err)
	}
	lg.trackRecord(rec)
	return nil
}

// MarkValidated stores the realized outcome. It returns false without error
// when the record was already validated.
func (lg *Ledger) MarkValidated(ctx context.Context, requestID string, v models.Validation) (bool, error) {
	var primaryErr error
	if lg.usePrimary() {
		updated, err := lg.primary.MarkValidated(ctx, requestID, v)
		switch {
		case err == nil:
			lg.observe(backendPrimary, "validate", nil)
			lg.markHealthy()
			if updated {
				lg.trackValidation(requestID, v)
				lg.mirror("validate", func(mctx context.Context) error {
					_, merr := lg.fallback.MarkValidated(mctx, requestID, v)
					if errors.Is(merr, models.ErrPredictionNotFound) {
						return nil
					}
					return merr
				})
			}
			return updated, nil
		case errors.Is(err, models.ErrPredictionNotFound):
			// may have been recorded while degraded
			lg.markHealthy()
			primaryErr = err
		default:
			lg.observe(backendPrimary, "validate", err)
			lg.markDegraded("validate", err)
			primaryErr = err
		}
	}

	updated, err := lg.fallback.MarkValidated(ctx, requestID, v)
	if errors.Is(err, models.ErrPredictionNotFound) {
		return false, err
	}
	lg.observe(backendFallback, "validate", err)
	if err != nil {
		return false, lg.persistenceErr("validate", primaryErr, err)
	}
	if updated {
		lg.trackValidation(requestID, v)
	}
	return updated, nil
}

// Query returns matching records, newest first.
func (lg *Ledger) Query(ctx context.Context, f models.PredictionFilter) ([]models.PredictionRecord, error) {
	var primaryErr error
	if lg.usePrimary() {
		// taken before the read: an entry leaves the set only once the
		// primary holds it
		pending := lg.unsyncedMatching(f)
		recs, err := lg.primary.Query(ctx, f)
		lg.observe(backendPrimary, "query", err)
		if err == nil {
			lg.markHealthy()
			return mergePending(recs, pending, f), nil
		}
		lg.markDegraded("query", err)
		primaryErr = err
	}

	recs, err := lg.fallback.Query(ctx, f)
	lg.observe(backendFallback, "query", err)
	if err != nil {
		return nil, lg.persistenceErr("query", primaryErr, err)
	}
	return recs, nil
}

// Trim deletes validated records predicted before the cutoff from both
// stores and returns the count removed from the serving one.
func (lg *Ledger) Trim(ctx context.Context, before time.Time) (int64, error) {
	var (
		primaryErr error
		served     int64 = -1
	)
	if lg.usePrimary() {
		n, err := lg.primary.Trim(ctx, before)
		lg.observe(backendPrimary, "trim", err)
		if err == nil {
			lg.markHealthy()
			served = n
		} else {
			lg.markDegraded("trim", err)
			primaryErr = err
		}
	}

	n, err := lg.fallback.Trim(ctx, before)
	lg.observe(backendFallback, "trim", err)
	if err == nil {
		lg.forgetTrimmed(before)
	}
	if served >= 0 {
		if err != nil {
			lg.l.Warn("embedded ledger trim failed", applogger.Error(err))
		}
		return served, nil
	}
	if err != nil {
		return 0, lg.persistenceErr("trim", primaryErr, err)
	}
	return n, nil
}

// Stats aggregates the ledger for ticker, or for every ticker when empty.
func (lg *Ledger) Stats(ctx context.Context, ticker string) (models.PredictionStats, error) {
	recs, err := lg.Query(ctx, models.PredictionFilter{Ticker: ticker})
	if err != nil {
		return models.PredictionStats{}, err
	}

	out := models.PredictionStats{Ticker: ticker, Total: len(recs)}
	var (
		errs, pcts, actuals []float64
		predSum             float64
	)
	for _, r := range recs {
		predSum += r.PredictedValue
		if !r.Validated || r.Error == nil || r.ErrorPct == nil || r.ActualValue == nil {
			continue
		}
		errs = append(errs, *r.Error)
		pcts = append(pcts, *r.ErrorPct)
		actuals = append(actuals, *r.ActualValue)
	}
	out.Validated = len(errs)
	out.Pending = out.Total - out.Validated
	if out.Total > 0 {
		out.AvgPredictedValue = predSum / float64(out.Total)
	}
	if len(errs) > 0 {
		out.MAE, out.MAPE, out.RMSE = stats.ErrorMetrics(errs, pcts)
		out.MinErrorPct, out.MaxErrorPct = math.Inf(1), math.Inf(-1)
		var actSum float64
		for i, p := range pcts {
			out.MinErrorPct = math.Min(out.MinErrorPct, p)
			out.MaxErrorPct = math.Max(out.MaxErrorPct, p)
			actSum += actuals[i]
		}
		out.AvgActualValue = actSum / float64(len(actuals))
	}
	return out, nil
}

// Close drains the mirror queue, then closes both stores. The ledger must
// not be used afterwards.
func (lg *Ledger) Close() error {
	lg.closeOnce.Do(func() {
		lg.mirrors.Wait()
		close(lg.queue)
	})
	var errs []error
	if lg.primary != nil {
		errs = append(errs, lg.primary.Close())
	}
	errs = append(errs, lg.fallback.Close())
	return errors.Join(errs...)
}

// Wait blocks until queued mirror writes and backfills finish.
func (lg *Ledger) Wait() {
	lg.mirrors.Wait()
}

// usePrimary decides whether this call goes to the networked store. While
// degraded it lets one call through per probe interval.
func (lg *Ledger) usePrimary() bool {
	if lg.primary == nil {
		return false
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if !lg.degraded {
		return true
	}
	now := lg.now()
	if now.Sub(lg.lastProbe) < lg.cfg.ProbeInterval {
		return false
	}
	lg.lastProbe = now
	return true
}

func (lg *Ledger) markDegraded(op string, cause error) {
	lg.mu.Lock()
	was := lg.degraded
	lg.degraded = true
	lg.lastProbe = lg.now()
	lg.mu.Unlock()

	if !was {
		lg.metrics.SetLedgerDegraded(true)
		lg.l.Warn("primary ledger unavailable, using embedded store",
			applogger.String("op", op),
			applogger.Error(cause),
		)
	}
}

func (lg *Ledger) markHealthy() {
	lg.mu.Lock()
	was := lg.degraded
	lg.degraded = false
	lg.mu.Unlock()

	if was {
		lg.metrics.SetLedgerDegraded(false)
		lg.l.Info("primary ledger recovered")
		lg.enqueue(mirrorJob{op: "backfill", timeout: lg.cfg.BackfillTimeout, fn: lg.backfill})
	}
}

func (lg *Ledger) mirror(op string, fn func(context.Context) error) {
	lg.enqueue(mirrorJob{op: op, timeout: lg.cfg.MirrorTimeout, fn: fn})
}

func (lg *Ledger) enqueue(job mirrorJob) {
	lg.mirrors.Add(1)
	lg.queue <- job
}

func (lg *Ledger) runMirrors() {
	for job := range lg.queue {
		ctx, cancel := context.WithTimeout(context.Background(), job.timeout)
		err := job.fn(ctx)
		cancel()
		lg.observe(backendFallback, "mirror_"+job.op, err)
		if err != nil {
			lg.l.Warn("ledger mirror job failed", applogger.String("op", job.op), applogger.Error(err))
		}
		lg.mirrors.Done()
	}
}

// trackRecord remembers a record that only reached the embedded store.
func (lg *Ledger) trackRecord(rec models.PredictionRecord) {
	if lg.primary == nil {
		return
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	p := lg.unsynced[rec.RequestID]
	p.rec = rec
	p.version++
	lg.unsynced[rec.RequestID] = p
}

// refreshUnsynced keeps a pending entry in step with a re-record that
// reached the primary, so a later backfill does not restore stale values.
func (lg *Ledger) refreshUnsynced(rec models.PredictionRecord) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	p, ok := lg.unsynced[rec.RequestID]
	if !ok {
		return
	}
	p.rec = rec
	p.version++
	lg.unsynced[rec.RequestID] = p
}

func (lg *Ledger) trackValidation(requestID string, v models.Validation) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	p, ok := lg.unsynced[requestID]
	if !ok {
		return
	}
	p.validation = &v
	p.version++
	lg.unsynced[requestID] = p
}

func (lg *Ledger) forgetTrimmed(before time.Time) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	for id, p := range lg.unsynced {
		if p.validation != nil && p.rec.PredictedAt.Before(before) {
			delete(lg.unsynced, id)
		}
	}
}

// backfill copies records written while degraded into the primary. Entries
// that changed during the copy stay queued for the next recovery.
func (lg *Ledger) backfill(ctx context.Context) error {
	lg.mu.Lock()
	pending := make([]pendingSync, 0, len(lg.unsynced))
	for _, p := range lg.unsynced {
		pending = append(pending, p)
	}
	lg.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	var (
		errs   []error
		copied int
	)
	for _, p := range pending {
		id := p.rec.RequestID
		if err := lg.primary.Record(ctx, p.rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if p.validation != nil {
			if _, err := lg.primary.MarkValidated(ctx, id, *p.validation); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
		}
		lg.mu.Lock()
		if cur, ok := lg.unsynced[id]; ok && cur.version == p.version {
			delete(lg.unsynced, id)
		}
		lg.mu.Unlock()
		copied++
	}

	lg.l.Info("ledger backfill complete",
		applogger.Int("copied", copied),
		applogger.Int("failed", len(errs)),
	)
	if len(errs) > 0 {
		err := errors.Join(errs...)
		lg.markDegraded("backfill", err)
		return err
	}
	return nil
}

// unsyncedMatching returns the pending records that match f, keyed by id.
func (lg *Ledger) unsyncedMatching(f models.PredictionFilter) map[string]models.PredictionRecord {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if len(lg.unsynced) == 0 {
		return nil
	}
	out := make(map[string]models.PredictionRecord)
	for id, p := range lg.unsynced {
		r := p.rec
		if v := p.validation; v != nil {
			actual, e, pct, at := v.ActualValue, v.Error, v.ErrorPct, v.ValidatedAt
			r.Validated = true
			r.ActualValue, r.Error, r.ErrorPct, r.ValidatedAt = &actual, &e, &pct, &at
		}
		if matchesFilter(r, f) {
			out[id] = r
		}
	}
	return out
}

// mergePending adds pending records to a primary result, keeping
// newest-first order and the filter's limit. Pending copies win.
func mergePending(recs []models.PredictionRecord, pending map[string]models.PredictionRecord, f models.PredictionFilter) []models.PredictionRecord {
	if len(pending) == 0 {
		return recs
	}
	out := make([]models.PredictionRecord, 0, len(recs)+len(pending))
	for _, r := range recs {
		if _, ok := pending[r.RequestID]; !ok {
			out = append(out, r)
		}
	}
	for _, r := range pending {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PredictedAt.After(out[j].PredictedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func matchesFilter(r models.PredictionRecord, f models.PredictionFilter) bool {
	if f.Ticker != "" && r.Ticker != f.Ticker {
		return false
	}
	if f.Validated != nil && r.Validated != *f.Validated {
		return false
	}
	return f.Since.IsZero() || !r.PredictedAt.Before(f.Since)
}

func (lg *Ledger) observe(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	lg.metrics.RecordLedgerOp(backend, op, result)
}

func (lg *Ledger) persistenceErr(op string, primaryErr, fallbackErr error) error {
	lg.l.Error("ledger operation failed on every backend",
		applogger.String("op", op),
		applogger.Error(errors.Join(primaryErr, fallbackErr)),
	)
	return fmt.Errorf("ledger %s: %v: %w", op, errors.Join(primaryErr, fallbackErr), models.ErrPersistence)
}
