//go:build linux

package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/legamerdc/reactor/server"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeConfig(t *testing.T) {
	defer viper.Reset()
	viper.Set("services", "echo:7000, framed:0,")
	viper.Set("workers", 3)
	viper.Set("poll-timeout", "250ms")
	viper.Set("max-payload", 1024)

	cfg, err := serveConfig()
	require.NoError(t, err)
	assert.Equal(t, []server.Service{{Kind: server.KindEcho, Port: 7000}, {Kind: server.KindFramed}}, cfg.Services)
	assert.Equal(t, 3, cfg.Reactor.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Reactor.PollTimeout)
	assert.Equal(t, 1024, cfg.MaxPayload)

	viper.Set("services", " ")
	_, err = serveConfig()
	assert.Error(t, err)

	viper.Set("services", "gopher:1")
	_, err = serveConfig()
	assert.Error(t, err)
}

func startServices(t *testing.T) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Reactor.Workers = 2
	cfg.Reactor.PollTimeout = 20 * time.Millisecond
	cfg.Services = []server.Service{{Kind: server.KindEcho}, {Kind: server.KindFramed}}
	s, err := server.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	defer viper.Reset()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func TestSendAndPing(t *testing.T) {
	s := startServices(t)

	echoPort := strconv.Itoa(s.Port(server.Service{Kind: server.KindEcho}))
	out, err := execute(t, "send", "127.0.0.1", echoPort, "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)

	framedAddr := fmt.Sprintf("127.0.0.1:%d", s.Port(server.Service{Kind: server.KindFramed}))
	out, err = execute(t, "ping", framedAddr, "--count", "3", "--size", "32")
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count([]byte(out), []byte("32 bytes from")))
}

func TestSendConnectRefused(t *testing.T) {
	// 临时占用再释放一个端口，得到一个大概率无人监听的端口
	s := startServices(t)
	port := s.Port(server.Service{Kind: server.KindEcho})
	require.NoError(t, s.Reactor().Unlisten(port))

	_, err := execute(t, "send", "127.0.0.1", strconv.Itoa(port), "x", "--timeout", "2s")
	assert.Error(t, err)
}
