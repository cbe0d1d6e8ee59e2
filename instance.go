//go:build linux

package reactor

import (
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/legamerdc/reactor/poller"
)

// Instance 持有一个 Connection 与当前生效的 Protocol。
type Instance struct {
	id    string
	fd    int
	conn  *Connection
	proto Protocol

	use   sync.Mutex // 协议执行独占，只用 TryLock
	dying atomic.Bool

	ctl        sync.Mutex // 保护 registered/closed 与 poller 操作，注销先于关闭
	registered bool
	closed     bool

	r *Reactor
}

func newInstance(r *Reactor, c *Connection, p Protocol) *Instance {
	inst := &Instance{id: uuid.NewString(), fd: c.FD(), conn: c, r: r}
	inst.setProtocol(p)
	return inst
}

// ID 用于日志关联。
func (i *Instance) ID() string { return i.id }

func (i *Instance) setProtocol(p Protocol) {
	i.proto = p
	if b, ok := p.(MaskBinder); ok {
		b.BindMask(i.r.maskFunc(i))
	}
}

func interest(m Mask) poller.Events {
	ev := poller.OneShot
	if m.Has(MaskRead) {
		ev |= poller.In | poller.RdHup
	}
	if m.Has(MaskWrite) {
		ev |= poller.Out
	}
	return ev
}

func (i *Instance) register() error {
	i.ctl.Lock()
	defer i.ctl.Unlock()
	if i.closed {
		return ErrClosed
	}
	if err := i.r.poll.Add(i.fd, interest(i.proto.DefaultMask())); err != nil {
		return err
	}
	i.registered = true
	return nil
}

// updateInterest 重新设置一次性关注集合。
func (i *Instance) updateInterest(m Mask) error {
	i.ctl.Lock()
	defer i.ctl.Unlock()
	if i.closed {
		return ErrClosed
	}
	return i.r.poll.Mod(i.fd, interest(m))
}

// ready 调用协议，panic 转成 error。
func (i *Instance) ready(rs Reason) (sig Signal, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return i.proto.Ready(i.conn, rs)
}

func (i *Instance) isClosed() bool {
	i.ctl.Lock()
	defer i.ctl.Unlock()
	return i.closed
}

// live 报告实例已注册到 epoll 且未释放。注册前到达的消息只可能属于该 fd 的前一个使用者。
func (i *Instance) live() bool {
	i.ctl.Lock()
	defer i.ctl.Unlock()
	return i.registered && !i.closed
}

// release 先从 epoll 注销再关闭 fd；协议若实现 io.Closer 一并关闭。
func (i *Instance) release() {
	i.ctl.Lock()
	if i.closed {
		i.ctl.Unlock()
		return
	}
	i.closed = true
	if err := i.r.poll.Del(i.fd); err != nil {
		rlog.Debugf("instance %s fd=%d deregister: %v", i.id, i.fd, err)
	}
	_ = i.conn.Close()
	i.ctl.Unlock()

	if c, ok := i.proto.(io.Closer); ok {
		if err := c.Close(); err != nil {
			rlog.Debugf("instance %s protocol close: %v", i.id, err)
		}
	}
}
