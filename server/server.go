//go:build linux

// Package server 把 reactor 与示例协议组装成可运行的服务，并可选地暴露 /metrics。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/legamerdc/reactor"
	"github.com/legamerdc/reactor/protocols/echo"
	"github.com/legamerdc/reactor/protocols/framed"
	"github.com/legamerdc/reactor/protocols/static"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/sourcegraph/conc"
)

var slog = logger.GetLogger("server")

type Server struct {
	cfg   Config
	r     *reactor.Reactor
	ports map[Service]int
	http  *http.Server
	mln   net.Listener
	wg    conc.WaitGroup
}

// Start 创建 reactor 并监听每个服务；任一步失败会回滚已创建的资源。
func Start(cfg Config) (*Server, error) {
	if len(cfg.Services) == 0 {
		return nil, reactor.ErrInvalidArgument
	}
	r, err := reactor.New(cfg.Reactor)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, r: r, ports: make(map[Service]int)}
	for _, svc := range cfg.Services {
		inst, err := s.instantiator(svc.Kind)
		if err != nil {
			_ = r.Shutdown()
			return nil, err
		}
		l, err := r.Listen(svc.Port, inst)
		if err != nil {
			_ = r.Shutdown()
			return nil, fmt.Errorf("server: listen %s: %w", svc, err)
		}
		s.ports[svc] = l.Port()
		slog.Infof("service %s ready on port %d", svc.Kind, l.Port())
	}
	if cfg.MetricsAddr != "" {
		if err := s.serveMetrics(cfg.MetricsAddr); err != nil {
			_ = r.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) instantiator(k Kind) (reactor.Instantiator, error) {
	switch k {
	case KindEcho:
		return reactor.Auto[echo.Protocol](), nil
	case KindFramed:
		return framed.New(framed.Options{MaxPayload: s.cfg.MaxPayload}), nil
	case KindStatic:
		return static.New(s.cfg.StaticRoot), nil
	}
	return nil, fmt.Errorf("server: unknown service kind %q", k)
}

func (s *Server) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.r.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	s.mln = ln
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.wg.Go(func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Errorf("metrics server: %v", err)
		}
	})
	slog.Infof("metrics on http://%s/metrics", ln.Addr())
	return nil
}

// Reactor 返回底层 reactor。
func (s *Server) Reactor() *reactor.Reactor { return s.r }

// Port 返回服务实际监听的端口（配置端口为 0 时由内核分配）。
func (s *Server) Port(svc Service) int { return s.ports[svc] }

// MetricsAddr 返回 /metrics 的监听地址，未启用时为空。
func (s *Server) MetricsAddr() string {
	if s.mln == nil {
		return ""
	}
	return s.mln.Addr().String()
}

// Stop 关闭 metrics 与 reactor，错误合并返回。
func (s *Server) Stop(ctx context.Context) error {
	var merr *multierror.Error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	s.wg.Wait()
	if err := s.r.Shutdown(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}
