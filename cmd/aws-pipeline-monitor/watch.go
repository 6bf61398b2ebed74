package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
	watchFilter      string
	watchStatus      string
)

var watchCmd = &cobra.Command{
	Use:   "watch <type>",
	Short: "Refresh one resource type on an interval",
	Long: `Refresh the given resource type every --interval and print one summary
line per refresh until interrupted. With --metrics-addr, fetch and cache
metrics are served in Prometheus format at /metrics.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: resourceTypeNames(),
	RunE:      runWatch,
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 5*time.Minute, "Refresh interval")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (e.g. :9090)")
	watchCmd.Flags().StringVarP(&watchFilter, "filter", "q", "", "Comma-separated name fragments to match")
	watchCmd.Flags().StringVarP(&watchStatus, "status", "s", pm.StatusAll, "Only count resources with this status")
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := parseResourceType(args)
	if err != nil {
		return err
	}
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var metricsHandler http.Handler
	if watchMetricsAddr != "" {
		metricsHandler, err = setupMetrics()
		if err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	m, err := a.monitor(rt)
	if err != nil {
		return err
	}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			for u := range m.Watch(ctx, watchInterval) {
				printUpdate(cmd.OutOrStdout(), u)
			}
			return nil
		}, func(error) {
			cancel()
		})
	}
	if metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		srv := &http.Server{Addr: watchMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Add(func() error {
			a.logger.Info().Str("addr", watchMetricsAddr).Msg("starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	a.logger.Info().
		Str("resource_type", rt.String()).
		Dur("interval", watchInterval).
		Msg("watching")
	return g.Run()
}

// setupMetrics installs a global meter provider backed by a Prometheus
// registry and returns the handler serving it.
func setupMetrics() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func printUpdate(w io.Writer, u pm.Update) {
	stamp := u.At.Format(time.Kitchen)
	if u.Err != nil {
		fmt.Fprintf(w, "%s error: %v\n", stamp, u.Err)
		return
	}
	records := pm.Filter(u.Batch.Records, pm.Query{Text: watchFilter, Status: watchStatus})
	fmt.Fprintf(w, "%s [%s] %s\n", stamp, u.Origin, summaryLine(u.Batch, records))
}
