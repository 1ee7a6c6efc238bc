// Package dispatcher polls for sessions awaiting proof verification and runs
// the verifier on each, at most one run per session at a time.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"zkconsent/internal/audit"
	"zkconsent/internal/session/metrics"
	"zkconsent/internal/session/models"
	sessionstore "zkconsent/internal/session/store"
	"zkconsent/internal/tracer"
	"zkconsent/internal/verifier"
	dErrors "zkconsent/pkg/domain-errors"
)

// Dispatcher drives background verification. Each poll cycle it commits
// expiries for sessions whose window has elapsed, then verifies the rest.
// An in-flight set guarantees at most one concurrent run per session even
// when a run outlives the poll interval.
type Dispatcher struct {
	sessions sessionstore.Store
	verifier *verifier.Service

	interval    time.Duration
	concurrency int
	metrics     *metrics.Metrics
	audit       *audit.Publisher
	tracer      tracer.Tracer
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithInterval sets the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.interval = interval }
}

// WithConcurrency bounds how many sessions one cycle verifies in parallel.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = n }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithAudit sets the audit publisher.
func WithAudit(p *audit.Publisher) Option {
	return func(d *Dispatcher) { d.audit = p }
}

// WithTracer sets the tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher.
func New(sessions sessionstore.Store, v *verifier.Service, logger *slog.Logger, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sessions:    sessions,
		verifier:    v,
		interval:    3 * time.Second,
		concurrency: 4,
		tracer:      tracer.NewNoop(),
		logger:      logger,
		now:         time.Now,
		inFlight:    make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the polling loop in a background goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.poll()
		}
	}
}

// Poll runs one dispatch cycle synchronously. Exposed for callers that drive
// cycles themselves, such as tests.
func (d *Dispatcher) Poll() {
	d.poll()
}

func (d *Dispatcher) poll() {
	start := d.now()
	ctx, span := d.tracer.Start(d.ctx, tracer.SpanDispatchCycle)
	defer func() {
		span.End(nil)
		d.metrics.ObserveDispatchCycle(d.now().Sub(start).Seconds())
	}()

	pending, err := d.sessions.ListAwaitingVerification(ctx)
	if err != nil {
		d.logger.Error("list sessions awaiting verification", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, sess := range pending {
		if !d.acquire(sess.SessionID) {
			continue
		}
		sess := sess
		g.Go(func() error {
			defer d.release(sess.SessionID)
			d.handle(ctx, sess)
			return nil
		})
	}
	_ = g.Wait()
}

// handle expires or verifies one session.
func (d *Dispatcher) handle(ctx context.Context, sess *models.Session) {
	now := d.now()
	if sess.Expired(now) {
		d.expire(ctx, sess, now)
		return
	}

	// one sequential verification run per proof type; the first committed
	// outcome settles the session, further runs lose the CAS and stop
	for _, proofType := range sess.ProofTypes {
		_, err := d.verifier.Verify(ctx, sess.SessionID, proofType, "")
		if err == nil {
			continue
		}
		switch {
		case dErrors.HasCode(err, dErrors.CodeStateConflict):
			// another writer settled it first
			return
		case dErrors.HasCode(err, dErrors.CodeSessionExpired):
			d.expire(ctx, sess, d.now())
			return
		default:
			d.logger.Error("verification run failed",
				"session_id", sess.SessionID,
				"proof_type", proofType,
				"error", err,
			)
			return
		}
	}
}

// expire commits the authoritative Ongoing -> Completed transition.
func (d *Dispatcher) expire(ctx context.Context, sess *models.Session, now time.Time) {
	if _, err := d.sessions.MarkExpired(ctx, sess.SessionID, now); err != nil {
		if errors.Is(err, sessionstore.ErrStale) || errors.Is(err, sessionstore.ErrNotFound) {
			return
		}
		d.logger.Error("mark session expired", "session_id", sess.SessionID, "error", err)
		return
	}
	d.metrics.IncSessionsExpired()
	d.audit.Emit(audit.Event{
		Type:       audit.EventSessionExpired,
		SessionID:  sess.SessionID,
		ProviderID: sess.ProviderID,
	})
	d.logger.Info("session expired", "session_id", sess.SessionID)
}

func (d *Dispatcher) acquire(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[sessionID]; busy {
		return false
	}
	d.inFlight[sessionID] = struct{}{}
	d.metrics.AddVerificationsInFlight(1)
	return true
}

func (d *Dispatcher) release(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, sessionID)
	d.metrics.AddVerificationsInFlight(-1)
}

// Stop cancels the loop and waits for in-flight runs to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
