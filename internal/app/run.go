package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Run starts the scheduler and ops server and blocks until a shutdown
// signal is received.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.sched.Start(ctx); err != nil {
		return err
	}
	if err := a.opsServer.Start(ctx); err != nil {
		return err
	}

	logrus.Info("application started successfully")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logrus.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Shutdown stops components in reverse dependency order: ops server
// first, then the scheduler (draining in-flight cycles), then Redis.
func (a *App) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down application...")

	if err := a.opsServer.Shutdown(ctx); err != nil {
		logrus.Errorf("ops server shutdown error: %v", err)
	}

	a.sched.Stop()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logrus.Errorf("Redis close error: %v", err)
		}
	}

	logrus.Info("application shutdown complete")
	return nil
}
