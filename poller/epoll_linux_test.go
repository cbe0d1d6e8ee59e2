//go:build linux

package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestOneShotRequiresRearm(t *testing.T) {
	p, err := New(16)
	require.NoError(t, err)
	defer p.Close()

	r, w := newPipe(t)
	require.NoError(t, p.Add(r, In|OneShot))
	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	evs := make([]Event, 16)
	n, err := p.Wait(evs, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, r, evs[0].FD)
	require.True(t, evs[0].Events.Has(In))

	// 未重新武装前，数据仍在但不再上报
	n, err = p.Wait(evs, 50)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, p.Mod(r, In|OneShot))
	n, err = p.Wait(evs, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestWakeInterruptsWait(t *testing.T) {
	p, err := New(0)
	require.NoError(t, err)
	defer p.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = p.Wake()
	}()
	start := time.Now()
	n, err := p.Wait(make([]Event, 8), 5000)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestDelAndClose(t *testing.T) {
	p, err := New(8)
	require.NoError(t, err)

	r, _ := newPipe(t)
	require.NoError(t, p.Add(r, In))
	require.NoError(t, p.Del(r))
	require.Error(t, p.Del(r))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.Wait(make([]Event, 1), 0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, p.Add(r, In), ErrClosed)
}
