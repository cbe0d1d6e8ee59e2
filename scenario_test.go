//go:build linux

package reactor_test

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/legamerdc/reactor"
	"github.com/legamerdc/reactor/protocols/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quitter 发送 quit，读到 bye 后终止。
type quitter struct {
	sent  bool
	reply strings.Builder
	done  chan string
}

func (q *quitter) DefaultMask() reactor.Mask { return reactor.MaskWrite }

func (q *quitter) Ready(c *reactor.Connection, rs reactor.Reason) (reactor.Signal, error) {
	if !q.sent {
		if !rs.Writable() {
			return reactor.Want(false, true), nil
		}
		n, err := c.Write([]byte(echo.QuitCommand + "\n"))
		if err != nil {
			return reactor.Signal{}, err
		}
		if n == 0 {
			return reactor.Want(false, true), nil
		}
		q.sent = true
		return reactor.Want(true, false), nil
	}
	buf := make([]byte, 64)
	for {
		n, err := c.Read(buf)
		if err != nil {
			q.done <- q.reply.String()
			return reactor.Terminate(), nil
		}
		if n == 0 {
			break
		}
		q.reply.Write(buf[:n])
	}
	if strings.HasSuffix(q.reply.String(), "\n") {
		q.done <- q.reply.String()
		return reactor.Terminate(), nil
	}
	return reactor.Want(true, false), nil
}

func TestExternallyDrivenEchoScenario(t *testing.T) {
	r, err := reactor.New(reactor.Config{Workers: 2, NoMaster: true, PollTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	defer r.Shutdown()

	l, err := r.Listen(0, reactor.Auto[echo.Protocol]())
	require.NoError(t, err)

	done := make(chan string, 1)
	client := reactor.InstantiatorFunc(func() reactor.Protocol { return &quitter{done: done} })
	require.NoError(t, r.Connect("127.0.0.1", strconv.Itoa(l.Port()), client))
	require.Equal(t, 1, r.Count())

	// 一次外部驱动的 master 轮次：接受入站连接
	require.NoError(t, r.Poll())
	assert.Equal(t, 2, r.Count())

	deadline := time.Now().Add(10 * time.Second)
	for r.Count() > 0 {
		require.True(t, time.Now().Before(deadline), "instances still live: %d", r.Count())
		require.NoError(t, r.Poll())
	}
	select {
	case got := <-done:
		assert.Equal(t, echo.QuitReply, got)
	default:
		t.Fatal("client never saw the reply")
	}

	var sb strings.Builder
	r.WritePrometheus(&sb)
	assert.Contains(t, sb.String(), "reactor_accepted_total 1")
	assert.Contains(t, sb.String(), "reactor_connected_total 1")
	assert.Contains(t, sb.String(), "reactor_instances_live 0")
}
