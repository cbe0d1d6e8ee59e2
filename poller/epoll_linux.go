//go:build linux

package poller

import (
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sys/unix"
)

var plog = logger.GetLogger("poller")

type epollPoller struct {
	efd    int
	wfd    int // eventfd for wakeup
	raw    []unix.EpollEvent
	closed atomic.Bool
}

func New(maxEvents int) (Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	p := &epollPoller{efd: efd, wfd: wfd, raw: make([]unix.EpollEvent, maxEvents)}
	// 注册 wakeup fd
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return p, nil
}

func toEpoll(ev Events) uint32 {
	var flag uint32
	if ev.Has(In) {
		flag |= unix.EPOLLIN
	}
	if ev.Has(Out) {
		flag |= unix.EPOLLOUT
	}
	if ev.Has(RdHup) {
		flag |= unix.EPOLLRDHUP
	}
	if ev.Has(OneShot) {
		flag |= unix.EPOLLONESHOT
	}
	if ev.Has(Edge) {
		flag |= unix.EPOLLET
	}
	return flag
}

func fromEpoll(flag uint32) Events {
	var ev Events
	if flag&unix.EPOLLIN != 0 {
		ev |= In
	}
	if flag&unix.EPOLLOUT != 0 {
		ev |= Out
	}
	if flag&unix.EPOLLRDHUP != 0 {
		ev |= RdHup
	}
	if flag&unix.EPOLLERR != 0 {
		ev |= Err
	}
	if flag&unix.EPOLLHUP != 0 {
		ev |= Hup
	}
	return ev
}

func (p *epollPoller) Add(fd FD, ev Events) error {
	if p.closed.Load() {
		return ErrClosed
	}
	e := &unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, e)
}

func (p *epollPoller) Mod(fd FD, ev Events) error {
	if p.closed.Load() {
		return ErrClosed
	}
	e := &unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, fd, e)
}

func (p *epollPoller) Del(fd FD) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}

func (p *epollPoller) Wait(events []Event, timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	raw := p.raw
	if len(events) < len(raw) {
		raw = raw[:len(events)]
	}
	n, err := unix.EpollWait(p.efd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	out := 0
	var efdBuf [8]byte
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wfd {
			// 清空 eventfd
			for {
				_, rerr := unix.Read(p.wfd, efdBuf[:])
				if rerr == unix.EAGAIN {
					break
				}
				if rerr != nil {
					plog.Warningf("drain wakeup fd: %v", rerr)
					break
				}
			}
			continue
		}
		events[out] = Event{FD: fd, Events: fromEpoll(raw[i].Events)}
		out++
	}
	return out, nil
}
