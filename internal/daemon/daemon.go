package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/missionloop/missiond/internal/config"
	"github.com/missionloop/missiond/internal/gateway"
	"github.com/missionloop/missiond/internal/monitor"
	"github.com/missionloop/missiond/internal/server"
	"github.com/missionloop/missiond/internal/store"
)

// Run wires the daemon together and blocks until SIGINT/SIGTERM.
func Run(cfg *config.Config, version string) error {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	gw := gateway.New(cfg.Gateway.URL, cfg.Gateway.Token, version)
	defer gw.Close()

	mon := monitor.New(gw, st,
		monitor.WithPollInterval(cfg.Monitor.PollInterval),
		monitor.WithTimeout(cfg.Monitor.Timeout),
	)
	defer mon.StopAll()

	// Every gateway event at debug keeps the log useful when chasing
	// protocol issues without drowning normal operation.
	sub := gw.Subscribe(gateway.Wildcard, func(ev gateway.Event) {
		slog.Debug("gateway event", "event", ev.Name, "seq", ev.Seq)
	})
	defer gw.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first connect is best-effort. A gateway that is down at boot
	// is picked up by the reconnect loop.
	if err := gw.Connect(ctx); err != nil {
		slog.Warn("gateway not reachable at startup", "url", cfg.Gateway.URL, "error", err)
	}

	rearmWatches(st, mon)

	srv, err := server.New(st, gw, mon, cfg.Dashboard.Password, cfg.Dashboard.JWTSecret, version)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	slog.Info("missiond started", "version", version, "gateway", cfg.Gateway.URL)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	return nil
}

// rearmWatches restarts completion watches for tasks that were
// in_progress when the previous process died. Their timeout window
// starts over, which errs on the side of checking again.
func rearmWatches(st *store.Store, mon *monitor.Monitor) {
	tasks, err := st.ListTasks(store.TaskFilter{Status: store.StatusInProgress})
	if err != nil {
		slog.Warn("failed to list in-progress tasks at startup", "error", err)
		return
	}
	for _, t := range tasks {
		if t.SessionKey == nil || *t.SessionKey == "" || t.AssignedAgentID == nil {
			continue
		}
		slog.Info("resuming completion watch", "task", t.ID, "session", *t.SessionKey)
		mon.Start(t.ID, *t.SessionKey, *t.AssignedAgentID)
	}
}
