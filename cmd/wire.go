package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/agents/handler"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Loan-Advisor/agent/contract"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/events"
	llmx "github.com/tanpawarit/Chative-Loan-Advisor/agent/llm"
	lockx "github.com/tanpawarit/Chative-Loan-Advisor/agent/lock"
	statex "github.com/tanpawarit/Chative-Loan-Advisor/agent/state"
	"github.com/tanpawarit/Chative-Loan-Advisor/agent/transcript"
	configx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/config"
	openrouterx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/qstash"
	rabbitmqx "github.com/tanpawarit/Chative-Loan-Advisor/pkg/rabbitmq"
)

type app struct {
	orch    *orchestrator.Orchestrator
	history *transcript.BunStore
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("shutdown step failed")
		}
	}
}

// buildApp wires the orchestrator from LOAN_, OPENROUTER_, REDIS_,
// DATABASE_, QSTASH_ and AMQP_ variables. Optional adapters are skipped when
// their settings are empty.
func buildApp(ctx context.Context) (*app, error) {
	loanCfg, err := configx.New[orchestrator.Config]("LOAN")
	if err != nil {
		return nil, err
	}
	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, err
	}

	pingOpenRouter(ctx, llmCfg.OpenRouterFor(contractx.AgentMaster))

	registry, err := handler.NewLLMRegistry(ctx, *llmCfg)
	if err != nil {
		return nil, err
	}
	log.Info().Interface("handlers", registry.Names()).Msg("stage handlers registered")

	a := &app{}
	opts := []orchestrator.Option{}

	locks, err := buildLocks(a, loanCfg.EffectiveLockTTL())
	if err != nil {
		a.Close()
		return nil, err
	}
	opts = append(opts, orchestrator.WithLocks(locks))

	sinks, err := buildSinks(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts = append(opts, orchestrator.WithSinks(sinks...))

	orch, err := orchestrator.New(statex.NewMemoryStore(), registry, *loanCfg, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch = orch

	if loanCfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              loanCfg.MetricsAddr,
			Handler:           newMetricsRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return a, nil
}

func pingOpenRouter(ctx context.Context, cfg openrouterx.Config) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	found, err := openrouterx.Ping(pingCtx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("openrouter ping failed")
		return
	}
	if !found {
		log.Warn().Str("model", cfg.Model).Msg("configured model is not listed by openrouter")
	}
}

func buildLocks(a *app, ttl time.Duration) (*lockx.Manager, error) {
	redisCfg, err := configx.New[lockx.Config]("REDIS")
	if err != nil {
		return nil, err
	}
	if redisCfg.LockTTL > ttl {
		ttl = redisCfg.LockTTL
	}

	client := lockx.NewRedisClient(*redisCfg)
	if client == nil {
		return lockx.NewManager(lockx.WithTTL(ttl)), nil
	}
	a.closers = append(a.closers, client.Close)
	log.Info().Str("addr", redisCfg.Addr).Msg("distributed turn lock enabled")

	locker := lockx.NewRedisLocker(client, redisCfg.KeyPrefix)
	return lockx.NewManager(lockx.WithLocker(locker), lockx.WithTTL(ttl)), nil
}

func buildSinks(ctx context.Context, a *app) ([]contractx.TurnSink, error) {
	var sinks []contractx.TurnSink

	dbCfg, err := configx.New[transcript.Config]("DATABASE")
	if err != nil {
		return nil, err
	}
	if dbCfg.Enabled() {
		store, err := transcript.Open(*dbCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		if err := store.CreateSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
		a.history = store
		log.Info().Msg("turn transcript enabled")
	}

	qCfg, err := configx.New[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, err
	}
	if qCfg.Enabled() {
		client, err := qstashx.NewClient(*qCfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, events.NewQStashSink(client, qCfg.Destination))
		log.Info().Str("destination", qCfg.Destination).Msg("qstash turn events enabled")
	}

	amqpCfg, err := configx.New[rabbitmqx.Config]("AMQP")
	if err != nil {
		return nil, err
	}
	if amqpCfg.Enabled() {
		pub, err := rabbitmqx.Dial(*amqpCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		sinks = append(sinks, events.NewAMQPSink(pub))
		log.Info().Str("queue", amqpCfg.Queue).Msg("amqp turn events enabled")
	}

	return sinks, nil
}
