package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	lockx "github.com/tanpawarit/Chative-Loan-Advisor/agent/lock"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/metrics"
	nodex "github.com/tanpawarit/Chative-Loan-Advisor/agent/nodes"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
)

const tracerName = "github.com/tanpawarit/Chative-Loan-Advisor/agent/agents/orchestrator"

// lockTTLMargin covers everything in a turn besides the two handler calls:
// merges, routing and the sinks.
const lockTTLMargin = 30 * time.Second

// Config is loaded with the LOAN prefix.
type Config struct {
	HandlerTimeout  time.Duration `split_words:"true" default:"30s"`
	DefaultGreeting string        `split_words:"true" default:"Hello"`
	LockTTL         time.Duration `split_words:"true" default:"2m"`
	MetricsAddr     string        `split_words:"true"`
}

// MinLockTTL is the shortest turn lock that outlives a turn with a primary
// and a chained handler call. Zero when handler calls are unbounded.
func (c Config) MinLockTTL() time.Duration {
	if c.HandlerTimeout <= 0 {
		return 0
	}
	return 2*c.HandlerTimeout + lockTTLMargin
}

// EffectiveLockTTL is LockTTL raised to MinLockTTL.
func (c Config) EffectiveLockTTL() time.Duration {
	ttl := c.LockTTL
	if minTTL := c.MinLockTTL(); ttl < minTTL {
		log.Warn().
			Dur("lock_ttl", ttl).
			Dur("min_lock_ttl", minTTL).
			Msg("lock ttl shorter than a turn, raising it")
		ttl = minTTL
	}
	return ttl
}

type Option func(*Orchestrator)

// WithSinks adds turn sinks. Nil sinks are ignored.
func WithSinks(sinks ...contractx.TurnSink) Option {
	return func(o *Orchestrator) {
		for _, s := range sinks {
			if s != nil {
				o.sinks = append(o.sinks, s)
			}
		}
	}
}

func WithLocks(locks *lockx.Manager) Option {
	return func(o *Orchestrator) {
		if locks != nil {
			o.locks = locks
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

type Orchestrator struct {
	store    statex.Store
	registry contractx.HandlerRegistry
	locks    *lockx.Manager
	sinks    []contractx.TurnSink

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	handlerTimeout time.Duration
	greeting       string

	now    func() time.Time
	tracer trace.Tracer
}

func New(
	store statex.Store,
	registry contractx.HandlerRegistry,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: application store is required", contractx.ErrValidation)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: handler registry is required", contractx.ErrValidation)
	}

	greeting := strings.TrimSpace(cfg.DefaultGreeting)
	if greeting == "" {
		greeting = "Hello"
	}

	o := &Orchestrator{
		store:          store,
		registry:       registry,
		handlerTimeout: cfg.HandlerTimeout,
		greeting:       greeting,
		now:            time.Now,
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.locks == nil {
		o.locks = lockx.NewManager(lockx.WithTTL(cfg.EffectiveLockTTL()))
	} else if ttl, minTTL := o.locks.TTL(), cfg.MinLockTTL(); ttl < minTTL {
		return nil, fmt.Errorf("%w: lock ttl %s is shorter than a turn (%s)", contractx.ErrValidation, ttl, minTTL)
	}

	graphRunner, err := o.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// StartApplication creates an application and runs its first turn with
// initialMessage, or the default greeting when that is blank. If the turn
// fails the application still exists and its id is returned with the error.
func (o *Orchestrator) StartApplication(ctx context.Context, customerID string, initialMessage string) (contractx.StartResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.StartApplication",
		trace.WithAttributes(attribute.String("customer_id", customerID)))
	defer span.End()

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		err := fmt.Errorf("%w: customer id is empty", contractx.ErrValidation)
		recordSpanError(span, err)
		return contractx.StartResult{}, err
	}

	app, err := o.store.Create(ctx, customerID)
	if err != nil {
		recordSpanError(span, err)
		return contractx.StartResult{}, err
	}
	span.SetAttributes(attribute.String("application_id", app.ApplicationID))
	log.Info().
		Str("application_id", app.ApplicationID).
		Str("customer_id", customerID).
		Msg("application created")

	message := initialMessage
	if strings.TrimSpace(message) == "" {
		message = o.greeting
	}

	out, err := o.runTurn(ctx, app.ApplicationID, message, nil)
	if err != nil {
		recordSpanError(span, err)
		return contractx.StartResult{ApplicationID: app.ApplicationID}, err
	}

	return contractx.StartResult{
		ApplicationID: app.ApplicationID,
		Response:      out.Turn,
	}, nil
}

// ProcessMessage runs one turn. An unknown id yields a not-found result and a
// nil error; handler failures come back as an error wrapping
// contract.ErrHandlerFailed.
func (o *Orchestrator) ProcessMessage(
	ctx context.Context,
	applicationID string,
	message string,
	dataUpdate map[string]any,
) (contractx.ProcessResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ProcessMessage",
		trace.WithAttributes(attribute.String("application_id", applicationID)))
	defer span.End()

	if _, err := o.store.Get(ctx, applicationID); err != nil {
		if isNotFound(err) {
			metrics.TurnsNotFound.Inc()
			span.SetAttributes(attribute.Bool("not_found", true))
			return contractx.NotFoundResult(), nil
		}
		recordSpanError(span, err)
		return contractx.ProcessResult{}, err
	}

	out, err := o.runTurn(ctx, applicationID, message, dataUpdate)
	if err != nil {
		if isNotFound(err) {
			metrics.TurnsNotFound.Inc()
			return contractx.NotFoundResult(), nil
		}
		recordSpanError(span, err)
		return contractx.ProcessResult{}, err
	}

	span.SetAttributes(
		attribute.String("agent", string(out.Turn.AgentName)),
		attribute.String("status", out.Turn.Status),
	)
	turn := out.Turn
	return contractx.ProcessResult{Kind: contractx.ResultOK, Turn: &turn}, nil
}

// GetApplication returns a detached copy, taken between turns.
func (o *Orchestrator) GetApplication(ctx context.Context, applicationID string) (*statex.LoanApplication, bool) {
	var snapshot *statex.LoanApplication
	err := o.locks.WithLock(ctx, strings.TrimSpace(applicationID), func(ctx context.Context) error {
		app, err := o.store.Get(ctx, applicationID)
		if err != nil {
			return err
		}
		snapshot = app.Clone()
		return nil
	})
	if err != nil {
		return nil, false
	}
	return snapshot, true
}

func (o *Orchestrator) runTurn(
	ctx context.Context,
	applicationID string,
	message string,
	dataUpdate map[string]any,
) (nodex.GraphOutput, error) {
	metrics.ActiveTurns.Inc()
	defer metrics.ActiveTurns.Dec()

	var out nodex.GraphOutput
	err := o.locks.WithLock(ctx, strings.TrimSpace(applicationID), func(ctx context.Context) error {
		metrics.LockEntries.Set(float64(o.locks.Len()))
		var err error
		out, err = o.graphRunner.Invoke(ctx, nodex.GraphInput{
			ApplicationID: applicationID,
			Text:          message,
			DataUpdate:    dataUpdate,
		})
		return err
	})
	metrics.LockEntries.Set(float64(o.locks.Len()))
	return out, err
}

// ListApplications returns every application id, sorted.
func (o *Orchestrator) ListApplications(ctx context.Context) ([]string, error) {
	return o.store.List(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, statex.ErrApplicationNotFound) || errors.Is(err, statex.ErrInvalidApplication)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
