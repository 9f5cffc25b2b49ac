package app

import (
	"context"

	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
)

// Start launches the background schedulers.
func (a *Application) Start(ctx context.Context) error {
	a.retrySched.Start(ctx)
	a.expirySched.Start(ctx)
	logger.Info("background schedulers started")
	return nil
}

// Shutdown gracefully shuts down all application components.
// Schedulers stop before the pools so no new deliveries are resumed into a
// draining pool.
func (a *Application) Shutdown() {
	if a.retrySched != nil {
		a.retrySched.Stop()
	}
	if a.expirySched != nil {
		a.expirySched.Stop()
	}
	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	closeQuietly(a.boltEvents)
}
