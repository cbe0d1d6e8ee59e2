package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/legamerdc/reactor"
)

// Kind 为服务类型。
type Kind string

const (
	KindEcho   Kind = "echo"
	KindFramed Kind = "framed"
	KindStatic Kind = "static"
)

// Service 在 Port 上提供 Kind 协议。
type Service struct {
	Kind Kind
	Port int
}

func (s Service) String() string { return fmt.Sprintf("%s:%d", s.Kind, s.Port) }

// ParseService 解析 kind:port 形式，如 echo:7000。
func ParseService(v string) (Service, error) {
	kind, port, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return Service{}, fmt.Errorf("server: invalid service %q, want kind:port", v)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 0xFFFF {
		return Service{}, fmt.Errorf("server: invalid port in %q", v)
	}
	switch k := Kind(strings.ToLower(kind)); k {
	case KindEcho, KindFramed, KindStatic:
		return Service{Kind: k, Port: p}, nil
	}
	return Service{}, fmt.Errorf("server: unknown service kind %q", kind)
}

type Config struct {
	Reactor     reactor.Config
	Services    []Service
	MetricsAddr string // 为空时不启动 /metrics
	StaticRoot  string
	MaxPayload  int
}

func DefaultConfig() Config {
	return Config{
		Reactor:    reactor.DefaultConfig(),
		Services:   []Service{{Kind: KindEcho, Port: 7000}},
		StaticRoot: ".",
		MaxPayload: 16 << 20, // 16 MiB
	}
}
