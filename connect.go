//go:build linux

package reactor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/legamerdc/reactor/internal/netutil"
	"golang.org/x/sys/unix"
)

// Connect 建立出站连接；握手完成后 inst 新建的协议接管该连接。
func (r *Reactor) Connect(host, service string, inst Instantiator) error {
	return r.ConnectContext(context.Background(), host, service, inst)
}

// ConnectContext 同 Connect；ctx 控制解析，其截止时间同时约束异步握手。
// 同步阶段的失败直接返回；异步阶段的失败通知实现了 ConnectObserver 的 inst。
func (r *Reactor) ConnectContext(ctx context.Context, host, service string, inst Instantiator) error {
	if inst == nil || service == "" {
		return ErrInvalidArgument
	}
	if !r.running.Load() {
		return ErrClosed
	}
	if host == "" {
		host = "localhost"
	}
	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", service)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolve, err)
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolve, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: no address for %s", ErrResolve, host)
	}

	var last error
	for _, ip := range ips {
		fd, err := dial(ip, port)
		if err != nil {
			last = err
			continue
		}
		hs := &handshake{target: inst}
		if dl, ok := ctx.Deadline(); ok {
			hs.deadline = dl
		}
		c := newConnection(fd, &net.TCPAddr{IP: ip, Port: port})
		in, err := r.admit(c, hs)
		if err != nil {
			return err
		}
		if !hs.deadline.IsZero() {
			time.AfterFunc(time.Until(hs.deadline), func() {
				if r.running.Load() {
					r.enqueue(message{fd: in.fd, reason: ReasonPulse, inst: in})
				}
			})
		}
		r.stats.connected.Inc()
		rlog.Debugf("connecting to %s:%d", ip, port)
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConnectEstablish, last)
}

// dial 发起非阻塞 connect；成功或 EINPROGRESS 返回 fd。
func dial(ip net.IP, port int) (int, error) {
	sa, family := netutil.Sockaddr(ip, port)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("%w: %w", ErrSocketAcquire, err)
	}
	switch err := unix.Connect(fd, sa); err {
	case nil, unix.EINPROGRESS, unix.EINTR:
	default:
		unix.Close(fd)
		return -1, err
	}
	_ = netutil.SetNoDelay(fd, true)
	return fd, nil
}

// handshake 等待非阻塞 connect 完成：只关注可写，通过 SO_ERROR 判断结果。
type handshake struct {
	target   Instantiator
	deadline time.Time
}

func (h *handshake) DefaultMask() Mask { return MaskWrite }

func (h *handshake) Ready(c *Connection, rs Reason) (Signal, error) {
	// 截止时刻的 pulse 由 ConnectContext 安排，这里只检查是否已过期
	if rs == ReasonPulse {
		if !h.deadline.IsZero() && !time.Now().Before(h.deadline) {
			return h.fail(context.DeadlineExceeded)
		}
		return Want(false, true), nil
	}
	if err := c.SocketError(); err != nil {
		return h.fail(err)
	}
	if !netutil.Connected(c.FD()) {
		return Want(false, true), nil
	}
	return SwitchTo(h.target.Instantiate()), nil
}

func (h *handshake) fail(cause error) (Signal, error) {
	err := fmt.Errorf("%w: %w", ErrConnectEstablish, cause)
	if o, ok := h.target.(ConnectObserver); ok {
		o.OnConnectError(err)
	}
	return Terminate(), err
}
