//go:build linux

package reactor

import (
	"fmt"

	"github.com/legamerdc/reactor/internal/netutil"
	"golang.org/x/sys/unix"
)

// AcceptFunc 每接受一个连接调用一次，所有权随之转移。
type AcceptFunc func(c *Connection)

// Listener 为已 bind/listen 的非阻塞 socket。
type Listener struct {
	Socket
	port   int
	accept AcceptFunc
}

// NewListener 在 port 上监听所有地址；优先 IPv6 双栈，不可用时退回 IPv4。
// port 为 0 时由内核分配，通过 Port() 获取。
func NewListener(port int, fn AcceptFunc) (*Listener, error) {
	if port < 0 || port > 0xFFFF || fn == nil {
		return nil, ErrInvalidArgument
	}
	fd, err := openListener(unix.AF_INET6, port)
	if err != nil {
		if fd4, err4 := openListener(unix.AF_INET, port); err4 == nil {
			fd, err = fd4, nil
		}
	}
	if err != nil {
		return nil, err
	}
	actual, err := netutil.LocalPort(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %w", ErrSocketBind, err)
	}
	l := &Listener{port: actual, accept: fn}
	l.fd.Store(int64(fd))
	return l, nil
}

func openListener(family, port int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrSocketAcquire, err)
	}
	_ = netutil.SetReuseAddr(fd, true)
	_ = netutil.SetReusePort(fd, true)
	var sa unix.Sockaddr
	if family == unix.AF_INET6 {
		_ = netutil.SetV6Only(fd, false)
		sa = &unix.SockaddrInet6{Port: port}
	} else {
		sa = &unix.SockaddrInet4{Port: port}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("%w: %w", ErrSocketBind, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("%w: %w", ErrListenStart, err)
	}
	return fd, nil
}

// Port 返回实际监听端口。
func (l *Listener) Port() int { return l.port }

// Accept 循环 accept4 直到 EAGAIN，对每个连接调用回调，返回接受数量。
func (l *Listener) Accept() (int, error) {
	lfd := l.FD()
	if lfd < 0 {
		return 0, ErrClosed
	}
	n := 0
	for {
		fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return n, nil
			case unix.EINTR, unix.ECONNABORTED:
				continue
			}
			return n, err
		}
		_ = netutil.SetNoDelay(fd, true)
		l.accept(newConnection(fd, netutil.TCPAddr(sa)))
		n++
	}
}
