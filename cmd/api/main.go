package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/app"
	"github.com/sandeepkv93/account-auth-service/internal/di"
)

func main() {
	a, err := di.InitializeApp()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	waitWorkers := a.StartWorkers(workerCtx)

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-serveErr:
		a.Logger.Error("http server stopped", "error", err)
		exitCode = 1
	}
	stop()

	shutdown(a, stopWorkers, waitWorkers)
	os.Exit(exitCode)
}

// shutdown drains HTTP first so in-flight logins finish, then stops the
// outbox and blocklist workers, then flushes telemetry.
func shutdown(a *app.App, stopWorkers context.CancelFunc, waitWorkers func()) {
	total, cancel := withTimeout(context.Background(), a.Config.ShutdownTimeout, 20*time.Second)
	defer cancel()

	httpCtx, httpCancel := withTimeout(total, a.Config.ShutdownHTTPDrainTimeout, 10*time.Second)
	if err := a.Server.Shutdown(httpCtx); err != nil {
		a.Logger.Error("http drain incomplete", "error", err)
	}
	httpCancel()

	stopWorkers()
	waitWorkers()

	if a.Observability != nil {
		obsCtx, obsCancel := withTimeout(total, a.Config.ShutdownObservabilityTimeout, 8*time.Second)
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Error("telemetry flush incomplete", "error", err)
		}
		obsCancel()
	}

	a.Close()
}

func withTimeout(parent context.Context, d, fallback time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = fallback
	}
	return context.WithTimeout(parent, d)
}
