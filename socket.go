//go:build linux

package reactor

import (
	"net"
	"sync/atomic"

	"github.com/legamerdc/reactor/internal/netutil"
	"golang.org/x/sys/unix"
)

// Socket 独占一个 fd 与对端地址，fd 只会被关闭一次。
type Socket struct {
	fd   atomic.Int64
	peer *net.TCPAddr
}

func newSocket(fd int, peer *net.TCPAddr) *Socket {
	s := &Socket{peer: peer}
	s.fd.Store(int64(fd))
	return s
}

// FD 返回底层描述符，已关闭时为 -1。
func (s *Socket) FD() int { return int(s.fd.Load()) }

// RemoteAddr 返回对端地址；监听 socket 为 nil。
func (s *Socket) RemoteAddr() *net.TCPAddr { return s.peer }

// LocalAddr 返回本端地址。
func (s *Socket) LocalAddr() *net.TCPAddr {
	fd := s.FD()
	if fd < 0 {
		return nil
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return netutil.TCPAddr(sa)
}

// SocketError 读取并清除 SO_ERROR。
func (s *Socket) SocketError() error {
	fd := s.FD()
	if fd < 0 {
		return ErrClosed
	}
	errno, err := netutil.SocketError(fd)
	if err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// Close 关闭 fd；重复调用返回 nil。
func (s *Socket) Close() error {
	fd := s.fd.Swap(-1)
	if fd < 0 {
		return nil
	}
	return unix.Close(int(fd))
}

// release 交出所有权但不关闭。
func (s *Socket) release() int {
	return int(s.fd.Swap(-1))
}
