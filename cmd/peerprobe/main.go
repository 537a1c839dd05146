// peerprobe dials a libp2p peer and measures round-trip latency.
//
// Usage:
//
//	peerprobe [options] <multiaddr>   Probe a peer
//	peerprobe --help                  Show help
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/peerprobe/config"
	klog "github.com/Klingon-tech/peerprobe/internal/log"
	"github.com/Klingon-tech/peerprobe/internal/report"
	"github.com/Klingon-tech/peerprobe/pkg/netclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, _, err := config.Load(args, os.Stdout)
	if errors.Is(err, config.ErrUsage) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	logger := klog.CLI

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var registerer prometheus.Registerer
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		registerer = reg
		srv := serveMetrics(cfg.Metrics.Addr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var pass []byte
	if cfg.Identity.Passphrase != "" {
		pass = []byte(cfg.Identity.Passphrase)
	}
	cl, err := netclient.New(netclient.Options{
		KeyType:      cfg.Identity.KeyType,
		Seed:         cfg.Identity.Seed,
		IdentityFile: cfg.Identity.File,
		Passphrase:   pass,
		ListenAddrs:  cfg.Listen,
		DialTimeout:  cfg.Dial.Timeout,
		ProbeTimeout: cfg.Probe.Timeout,
		Registerer:   registerer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := cl.Close(); err != nil {
			logger.Debug().Err(err).Msg("Client shutdown")
		}
	}()

	out := report.NewPrinter(os.Stdout)

	target, err := cl.Resolve(cfg.Target)
	if err != nil {
		_ = out.Error(err)
		return exitUsage
	}
	conn, err := cl.Connect(ctx, target)
	if err != nil {
		_ = out.Error(err)
		return exitFailure
	}

	stats := report.NewStats()
	var g errgroup.Group
	g.Go(func() error {
		for ev := range conn.All(context.Background()) {
			stats.ObserveEvent(ev)
			if err := out.Event(ev); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		defer conn.Close()
		probeLoop(ctx, cl, conn, cfg.Probe, stats, out)
		linger(ctx, conn, cfg.Session)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Msg("Event output failed")
	}

	_ = out.Println("")
	_ = out.Println(stats.Summary(target.String()))
	if stats.Received() == 0 {
		return exitFailure
	}
	return exitOK
}

// probeLoop sends probes until the configured count is reached, ctx is done
// or the connection is lost. A count of 0 probes until interrupted.
func probeLoop(ctx context.Context, cl netclient.Network, conn *netclient.Connection, pc config.ProbeConfig, stats *report.Stats, out *report.Printer) {
	for i := 0; pc.Count == 0 || i < pc.Count; i++ {
		if i > 0 {
			select {
			case <-time.After(pc.Interval):
			case <-ctx.Done():
				return
			case <-conn.Done():
				return
			}
		}
		rtt, err := cl.Probe(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		stats.Observe(rtt, err)
		if err != nil {
			_ = out.Error(err)
			if conn.IsClosed() {
				return
			}
		}
	}
}

// linger keeps the connection open after the last probe so inbound
// negotiations from the remote are still reported.
func linger(ctx context.Context, conn *netclient.Connection, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-conn.Done():
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.CLI.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	klog.CLI.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}
