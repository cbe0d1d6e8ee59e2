//go:build linux

// Package testutil 为协议测试启动带自有 master 的 reactor。
package testutil

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/legamerdc/reactor"
	"github.com/stretchr/testify/require"
)

// Serve 启动 reactor 并在随机端口上监听 inst，返回拨号地址。
func Serve(t testing.TB, inst reactor.Instantiator) (*reactor.Reactor, string) {
	t.Helper()
	r, err := reactor.New(reactor.Config{Workers: 4, PollTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown() })
	l, err := r.Listen(0, inst)
	require.NoError(t, err)
	return r, fmt.Sprintf("127.0.0.1:%d", l.Port())
}

// Dial 连接 addr，设置整体超时。
func Dial(t testing.TB, addr string) net.Conn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, nc.SetDeadline(time.Now().Add(10*time.Second)))
	t.Cleanup(func() { _ = nc.Close() })
	return nc
}
