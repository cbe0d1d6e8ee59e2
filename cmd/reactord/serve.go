//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/legamerdc/reactor/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reactor services",
	Long: `Start the reactor with the configured services. A service is KIND:PORT where
KIND is one of echo, framed or static; port 0 picks a free port.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("services", "echo:7000", "comma-separated list of KIND:PORT services")
	f.Int("workers", 0, "number of worker goroutines (0 = number of CPUs)")
	f.Duration("poll-timeout", time.Second, "upper bound of one epoll wait")
	f.Duration("worker-wait", 5*time.Second, "idle worker wake-up floor")
	f.Int("max-events", 1024, "events fetched per epoll wait")
	f.String("metrics-addr", "", "address for the /metrics endpoint (empty = disabled)")
	f.String("static-root", ".", "root directory served by static services")
	f.Int("max-payload", 16<<20, "maximum framed payload in bytes")
	f.Duration("shutdown-timeout", 5*time.Second, "grace period for stopping")
}

// serveConfig reads the server configuration from flags and environment.
func serveConfig() (server.Config, error) {
	cfg := server.DefaultConfig()
	cfg.Services = nil
	for _, v := range strings.Split(viper.GetString("services"), ",") {
		if strings.TrimSpace(v) == "" {
			continue
		}
		svc, err := server.ParseService(v)
		if err != nil {
			return cfg, err
		}
		cfg.Services = append(cfg.Services, svc)
	}
	if len(cfg.Services) == 0 {
		return cfg, fmt.Errorf("no services configured")
	}
	if w := viper.GetInt("workers"); w > 0 {
		cfg.Reactor.Workers = w
	}
	cfg.Reactor.PollTimeout = viper.GetDuration("poll-timeout")
	cfg.Reactor.WorkerWait = viper.GetDuration("worker-wait")
	cfg.Reactor.MaxEvents = viper.GetInt("max-events")
	cfg.MetricsAddr = viper.GetString("metrics-addr")
	cfg.StaticRoot = viper.GetString("static-root")
	cfg.MaxPayload = viper.GetInt("max-payload")
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := serveConfig()
	if err != nil {
		return err
	}
	srv, err := server.Start(cfg)
	if err != nil {
		return err
	}
	for _, svc := range cfg.Services {
		cmd.Printf("%s listening on :%d\n", svc.Kind, srv.Port(svc))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case <-srv.Reactor().Done():
		clog.Errorf("reactor halted: %v", srv.Reactor().Err())
	}

	sctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("shutdown-timeout"))
	defer cancel()
	if err := srv.Stop(sctx); err != nil {
		return err
	}
	if err := srv.Reactor().Err(); err != nil {
		return err
	}
	clog.Infof("stopped")
	return nil
}
