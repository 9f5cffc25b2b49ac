// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/api/handlers"
	"github.com/amitpaz1/formbridge-sub001/internal/approval"
	"github.com/amitpaz1/formbridge-sub001/internal/config"
	"github.com/amitpaz1/formbridge-sub001/internal/delivery"
	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/worker"
	"github.com/amitpaz1/formbridge-sub001/internal/registry"
	"github.com/amitpaz1/formbridge-sub001/internal/scheduler"
	"github.com/amitpaz1/formbridge-sub001/internal/store"
	"github.com/amitpaz1/formbridge-sub001/internal/submission"
	"github.com/amitpaz1/formbridge-sub001/internal/toolsurface"
	"github.com/amitpaz1/formbridge-sub001/internal/upload"
)

// Application holds composed application dependencies.
type Application struct {
	Config   *config.Config
	Router   *gin.Engine
	Registry *registry.Registry
	Manager  *submission.Manager
	Engine   *delivery.Engine
	Pools    *worker.Pools

	retrySched  *delivery.RetryScheduler
	expirySched *scheduler.ExpiryScheduler
	boltEvents  *store.BoltEventStore
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	evaluator := approval.NewConditionEvaluator()

	reg := registry.New()
	reg.SetConditionValidator(evaluator)
	if cfg.Submission.IntakeDir != "" {
		n, err := reg.LoadDir(cfg.Submission.IntakeDir)
		if err != nil {
			return nil, fmt.Errorf("load intakes: %w", err)
		}
		logger.Info("intake definitions loaded",
			zap.Int("count", n),
			zap.String("dir", cfg.Submission.IntakeDir),
		)
	}

	subs := store.NewSubmissionStore()

	var events store.EventStore
	var boltEvents *store.BoltEventStore
	switch cfg.Events.Backend {
	case "bolt":
		var err error
		boltEvents, err = store.NewBoltEventStore(cfg.Events.Path)
		if err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
		events = boltEvents
	default:
		events = store.NewMemoryEventStore()
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		DeliveryPoolSize: cfg.Worker.DeliveryPoolSize,
	})
	if err != nil {
		closeQuietly(boltEvents)
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	mgr := submission.NewManager(reg, subs, events, domain.NewEmitter(), evaluator, submission.Config{
		BaseURL:  cfg.Submission.BaseURL,
		TokenTTL: cfg.Submission.TokenTTL,
	})

	storage, err := newStorageBackend(ctx, cfg)
	if err != nil {
		pools.Shutdown()
		closeQuietly(boltEvents)
		return nil, fmt.Errorf("init storage backend: %w", err)
	}
	mgr.SetStorageBackend(storage)

	engine := delivery.NewEngine(delivery.NewMemoryQueue(), pools, delivery.Options{
		SigningSecret: cfg.Security.SigningSecret,
		Policy:        cfg.Delivery.Retry,
	})
	engine.SetSink(mgr)
	mgr.SetEnqueuer(engine)

	approvals := approval.NewManager(mgr)
	approvals.SetNotifier(&reviewNotifier{engine: engine, registry: reg})

	server := handlers.NewServer(handlers.ServerDeps{
		Registry:  reg,
		Manager:   mgr,
		Approvals: approvals,
		Engine:    engine,
		Tools:     toolsurface.NewAdapter(reg, mgr),
	})

	return &Application{
		Config:      cfg,
		Router:      newRouter(cfg, server),
		Registry:    reg,
		Manager:     mgr,
		Engine:      engine,
		Pools:       pools,
		retrySched:  delivery.NewRetryScheduler(engine, cfg.Delivery.RetryInterval),
		expirySched: scheduler.NewExpiryScheduler(mgr, subs, cfg.Submission.ExpiryInterval, cfg.Submission.MaxEntries),
		boltEvents:  boltEvents,
	}, nil
}

func newStorageBackend(ctx context.Context, cfg *config.Config) (upload.StorageBackend, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return upload.NewS3Backend(ctx, cfg.Storage.S3)
	default:
		return upload.NewMemoryBackend(""), nil
	}
}

func closeQuietly(s *store.BoltEventStore) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		logger.Warn("event store close failed", zap.Error(err))
	}
}

// reviewNotifier forwards negative review outcomes to the intake's webhook
// destination, reusing the signed delivery pipeline.
type reviewNotifier struct {
	engine   *delivery.Engine
	registry *registry.Registry
}

func (n *reviewNotifier) notify(ctx context.Context, sub *domain.Submission) {
	def, err := n.registry.Get(sub.IntakeID)
	if err != nil || def.Destination == nil {
		return
	}
	if _, err := n.engine.EnqueueDelivery(ctx, sub, def.Destination); err != nil {
		logger.Warn("review outcome delivery enqueue failed",
			zap.String("submission_id", sub.ID),
			zap.Error(err),
		)
	}
}

func (n *reviewNotifier) ReviewRejected(ctx context.Context, sub *domain.Submission, _ domain.Actor, _ string) {
	n.notify(ctx, sub)
}

func (n *reviewNotifier) ChangesRequested(ctx context.Context, sub *domain.Submission, _ domain.Actor, _ string) {
	n.notify(ctx, sub)
}
