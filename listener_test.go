//go:build linux

package reactor

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerDrainsBurst(t *testing.T) {
	var accepted []*Connection
	l, err := NewListener(0, func(c *Connection) { accepted = append(accepted, c) })
	require.NoError(t, err)
	defer l.Close()
	require.NotZero(t, l.Port())

	const burst = 64
	clients := make([]net.Conn, 0, burst)
	for i := 0; i < burst; i++ {
		nc, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", l.Port()))
		require.NoError(t, err)
		clients = append(clients, nc)
	}
	defer func() {
		for _, nc := range clients {
			_ = nc.Close()
		}
	}()

	n, err := l.Accept()
	require.NoError(t, err)
	assert.Equal(t, burst, n)
	assert.Len(t, accepted, burst)
	for _, c := range accepted {
		assert.NotNil(t, c.RemoteAddr())
		assert.True(t, c.RemoteAddr().IP.IsLoopback())
		_ = c.Close()
	}

	// 队列已空
	n, err = l.Accept()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListenerDualStack(t *testing.T) {
	got := 0
	l, err := NewListener(0, func(c *Connection) {
		got++
		_ = c.Close()
	})
	require.NoError(t, err)
	defer l.Close()

	nc, err := net.Dial("tcp4", fmt.Sprintf("127.0.0.1:%d", l.Port()))
	require.NoError(t, err)
	defer nc.Close()
	_, err = l.Accept()
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestListenerInvalidAndClosed(t *testing.T) {
	_, err := NewListener(-1, func(*Connection) {})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewListener(0, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	l, err := NewListener(0, func(*Connection) {})
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	_, err = l.Accept()
	assert.ErrorIs(t, err, ErrClosed)
}
