package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
	"github.com/iamlordofplatinumforest/FTP-client/internal/metrics"
)

var errSessionLost = errors.New("session lost")

func newWatchCmd(a *app) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a session alive and report server latency",
		Long: `
Hold a session open with heartbeats, reconnecting when it drops, while
sampling TCP connect latency to the server. A status line is printed every
interval. Prometheus metrics are served on --metrics-addr unless it is empty.

watch runs until interrupted or until the session is lost for good.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				a.cfg.MetricsAddr = metricsAddr
			}
			return a.watch(cmd.Context(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "latency sampling interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the /metrics endpoint (default from config)")
	return cmd
}

func (a *app) watch(ctx context.Context, interval time.Duration) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.New(reg)

	m, err := a.connect(ctx, ftpclient.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer m.Disconnect()

	g, ctx := errgroup.WithContext(ctx)

	lost := make(chan struct{})
	m.StartHeartbeat(func() { close(lost) })
	g.Go(func() error {
		select {
		case <-lost:
			return errSessionLost
		case <-ctx.Done():
			return nil
		}
	})

	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	mon := ftpclient.NewMonitor(addr, interval, a.cfg.Timeout, ftpclient.MonitorMetrics(collector))
	g.Go(func() error {
		mon.Run(ctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.printStatus(m.State(), mon.Stats())
			}
		}
	})

	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           metricsMux(collector),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux(c *metrics.Collector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return mux
}

func (a *app) printStatus(state ftpclient.State, stats ftpclient.MonitorStats) {
	if !stats.Reachable {
		fmt.Fprintf(a.stdout, "%s  session=%s  unreachable  loss=%.0f%%\n",
			stats.LastCheck.Format(time.TimeOnly), state, stats.Loss()*100)
		return
	}
	fmt.Fprintf(a.stdout, "%s  session=%s  latency=%v  loss=%.0f%%\n",
		stats.LastCheck.Format(time.TimeOnly), state, stats.Latency.Round(100*time.Microsecond), stats.Loss()*100)
}
