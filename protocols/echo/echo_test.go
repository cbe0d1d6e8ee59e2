//go:build linux

package echo_test

import (
	"bufio"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/legamerdc/reactor"
	"github.com/legamerdc/reactor/internal/testutil"
	"github.com/legamerdc/reactor/protocols/echo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoLinesThenQuit(t *testing.T) {
	r, addr := testutil.Serve(t, reactor.Auto[echo.Protocol]())
	nc := testutil.Dial(t, addr)
	rd := bufio.NewReader(nc)

	// 分片写入同一行
	_, err := io.WriteString(nc, "hel")
	require.NoError(t, err)
	_, err = io.WriteString(nc, "lo\nworld\n")
	require.NoError(t, err)

	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)
	line, err = rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "world\n", line)
	require.Eventually(t, func() bool { return r.Count() == 1 }, 5*time.Second, time.Millisecond)

	_, err = io.WriteString(nc, "quit\r\nignored\n")
	require.NoError(t, err)
	rest, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, echo.QuitReply, string(rest))
	require.Eventually(t, func() bool { return r.Count() == 0 }, 5*time.Second, time.Millisecond)
}

func TestEchoLargePayload(t *testing.T) {
	_, addr := testutil.Serve(t, reactor.Auto[echo.Protocol]())
	nc := testutil.Dial(t, addr)

	line := strings.Repeat("x", echo.MaxLine-1) + "\n"
	go func() {
		for i := 0; i < 8; i++ {
			_, _ = io.WriteString(nc, line)
		}
	}()
	rd := bufio.NewReaderSize(nc, len(line))
	for i := 0; i < 8; i++ {
		got, err := rd.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, len(line), len(got))
	}
}

func TestEchoPeerCloseTerminates(t *testing.T) {
	r, addr := testutil.Serve(t, reactor.Auto[echo.Protocol]())
	nc := testutil.Dial(t, addr)
	require.Eventually(t, func() bool { return r.Count() == 1 }, 5*time.Second, time.Millisecond)
	require.NoError(t, nc.Close())
	require.Eventually(t, func() bool { return r.Count() == 0 }, 5*time.Second, time.Millisecond)
}

func TestEchoLineTooLong(t *testing.T) {
	r, addr := testutil.Serve(t, reactor.Auto[echo.Protocol]())
	nc := testutil.Dial(t, addr)
	go func() { _, _ = io.WriteString(nc, strings.Repeat("y", echo.MaxLine+10)) }()
	// 服务端丢弃未读数据后关闭，可能得到 RST
	_, _ = io.ReadAll(nc)
	require.Eventually(t, func() bool { return r.Count() == 0 }, 5*time.Second, time.Millisecond)
}
