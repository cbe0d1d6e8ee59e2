//go:build linux

package framed_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/legamerdc/reactor/client"
	"github.com/legamerdc/reactor/codec"
	"github.com/legamerdc/reactor/internal/testutil"
	"github.com/legamerdc/reactor/protocols/framed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	api uint16
	msg string
}

type recorder struct {
	msgs   chan reply
	closed chan error
}

func newRecorder() *recorder {
	return &recorder{msgs: make(chan reply, 64), closed: make(chan error, 1)}
}

func (r *recorder) OnOpen(*client.Client) {}

func (r *recorder) OnMessage(_ *client.Client, api uint16, msg []byte) {
	r.msgs <- reply{api: api, msg: string(msg)}
}

func (r *recorder) OnClose(_ *client.Client, err error) { r.closed <- err }

func (r *recorder) next(t *testing.T) reply {
	t.Helper()
	select {
	case m := <-r.msgs:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}
	return reply{}
}

func TestFramedEcho(t *testing.T) {
	srv, addr := testutil.Serve(t, framed.New(framed.Options{MaxPayload: 1 << 20}))
	rec := newRecorder()
	c, err := client.Dial("tcp", addr, 0, rec)
	require.NoError(t, err)
	defer c.Close()

	big := bytes.Repeat([]byte("abcdefgh"), 4096)
	require.NoError(t, c.Write(1, []byte("plain"), false))
	require.NoError(t, c.Write(2, big, true))
	require.NoError(t, c.WriteBatch([]codec.Message{{Api: 3, Payload: []byte("x")}, {Api: 4, Payload: []byte("y")}}))

	assert.Equal(t, reply{1, "plain"}, rec.next(t))
	assert.Equal(t, reply{2, string(big)}, rec.next(t))
	assert.Equal(t, reply{3, "x"}, rec.next(t))
	assert.Equal(t, reply{4, "y"}, rec.next(t))

	require.NoError(t, c.Write(framed.ApiClose, nil, false))
	select {
	case err := <-rec.closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not close")
	}
	require.Eventually(t, func() bool { return srv.Count() == 0 }, 5*time.Second, time.Millisecond)
}

func TestFramedRejectsOversizedPayload(t *testing.T) {
	srv, addr := testutil.Serve(t, framed.New(framed.Options{MaxPayload: 16}))
	rec := newRecorder()
	c, err := client.Dial("tcp", addr, 0, rec)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write(1, make([]byte, 64), false))
	select {
	case <-rec.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not close")
	}
	require.Eventually(t, func() bool { return srv.Count() == 0 }, 5*time.Second, time.Millisecond)
}

func TestFramedAsyncHandler(t *testing.T) {
	release := make(chan struct{})
	h := func(api uint16, payload []byte) ([]byte, error) {
		<-release
		if api == 9 {
			return nil, errors.New("handler failed")
		}
		return append([]byte("async:"), payload...), nil
	}
	srv, addr := testutil.Serve(t, framed.New(framed.Options{Handler: h, Async: true}))
	rec := newRecorder()
	c, err := client.Dial("tcp", addr, 0, rec)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write(5, []byte("hi"), false))
	select {
	case <-rec.msgs:
		t.Fatal("reply before handler completed")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, reply{5, "async:hi"}, rec.next(t))

	// 异步失败通过关注回调终止连接
	require.NoError(t, c.Write(9, nil, false))
	select {
	case <-rec.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not close after async failure")
	}
	require.Eventually(t, func() bool { return srv.Count() == 0 }, 5*time.Second, time.Millisecond)
}
