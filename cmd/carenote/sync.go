package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kazu-apps/carenote-sync/internal/logging"
	"github.com/kazu-apps/carenote-sync/internal/metrics"
	"github.com/kazu-apps/carenote-sync/internal/model"
	"github.com/kazu-apps/carenote-sync/internal/scheduler"
	"github.com/kazu-apps/carenote-sync/internal/syncengine"
)

// cycleView is the printed form of a cycle result.
type cycleView struct {
	Status       model.CycleStatus `json:"status"`
	Pulled       int               `json:"pulled"`
	Pushed       int               `json:"pushed"`
	Purged       int               `json:"purged"`
	Failed       int               `json:"failed"`
	Watermark    int64             `json:"watermark"`
	LastSyncedAt *time.Time        `json:"last_synced_at,omitempty"`
	Failures     []failureView     `json:"failures,omitempty"`
}

type failureView struct {
	LocalID string `json:"local_id"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

func cycleViewOf(res model.CycleResult) cycleView {
	v := cycleView{
		Status:    res.Status,
		Pulled:    res.Pulled,
		Pushed:    res.Pushed,
		Purged:    res.Purged,
		Failed:    len(res.Failures),
		Watermark: res.Watermark.Seq,
	}
	if !res.Watermark.SyncedAt.IsZero() {
		v.LastSyncedAt = &res.Watermark.SyncedAt
	}
	for _, f := range res.Failures {
		v.Failures = append(v.Failures, failureView{LocalID: f.LocalID.String(), Kind: f.Kind, Reason: f.Reason})
	}
	return v
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.dialRemote()
			if err != nil {
				return err
			}
			defer rc.Close()

			eng := syncengine.New(a.store.Records(), a.store.State(), rc, a.cfg.Engine(), a.log,
				syncengine.WithValidator(a.validator))
			res, err := eng.RunSyncCycle(ctx)
			if perr := a.printJSON(cycleViewOf(res)); perr != nil {
				return perr
			}
			if res.Status == model.StatusFailed || res.Status == model.StatusCancelled {
				if err == nil {
					err = errors.New("sync " + string(res.Status))
				}
				return err
			}
			return nil
		},
	}
}

func newDaemonCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Sync periodically until interrupted; SIGUSR1 requests an immediate cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.dialRemote()
			if err != nil {
				return err
			}
			defer rc.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			eng := syncengine.New(a.store.Records(), a.store.State(), rc, a.cfg.Engine(), a.log,
				syncengine.WithValidator(a.validator),
				syncengine.WithMetrics(m))
			sched := scheduler.New(eng, a.cfg.Scheduler(), a.log,
				scheduler.WithResultHook(func(res model.CycleResult, err error) {
					fields := []zap.Field{
						zap.String("status", string(res.Status)),
						zap.Int("pulled", res.Pulled),
						zap.Int("pushed", res.Pushed),
						zap.Int("failed", len(res.Failures)),
					}
					a.log.Info("sync cycle", append(fields, logging.ErrorFields(err)...)...)
				}))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := sched.Run(gctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				usr := make(chan os.Signal, 1)
				signal.Notify(usr, syscall.SIGUSR1)
				defer signal.Stop(usr)
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-usr:
						a.log.Info("sync requested")
						sched.Trigger()
					}
				}
			})
			if addr := a.cfg.Metrics.Addr; addr != "" {
				srv := &http.Server{
					Addr:              addr,
					Handler:           metricsMux(reg),
					ReadHeaderTimeout: 5 * time.Second,
				}
				g.Go(func() error {
					a.log.Info("metrics listening", zap.String("addr", addr))
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}
			return g.Wait()
		},
	}
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
