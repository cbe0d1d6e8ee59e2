//go:build linux

package reactor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-multierror"
	"github.com/legamerdc/reactor/poller"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sourcegraph/conc"
)

var rlog = logger.GetLogger("reactor")

// message 为 master -> worker 的消息。inst 非空时只投递给该实例，防止 fd 复用后误投。
// epoll 产生的消息不带 inst：已终止 fd 的残留就绪事件可能落到复用该 fd 的新实例上，
// 表现为一次多余的唤醒（协议读到 0,nil 后重新关注）。新实例注册前收到的这类消息直接丢弃。
type message struct {
	fd     int
	reason Reason
	inst   *Instance
}

// Reactor 拥有 epoll、监听集合、实例表、master 与 worker 池。
type Reactor struct {
	cfg  Config
	poll poller.Poller

	running atomic.Bool
	done    chan struct{}
	wake    chan struct{}

	qmu   sync.Mutex
	queue *queue.Queue

	lmu       sync.Mutex
	listeners map[int]*Listener // port -> listener
	lfds      map[int]*Listener // fd -> listener

	tmu         *xsync.RBMutex
	table       map[int]*Instance
	tableClosed bool

	pmu        sync.Mutex // 串行化 Poll
	events     []poller.Event
	lastPulse  time.Time
	pulseEvery time.Duration

	master  conc.WaitGroup
	workers conc.WaitGroup

	errMu sync.Mutex
	err   error

	stopOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error

	stats *stats
}

// New 创建并启动 reactor：Workers 个 worker，以及（除非 NoMaster）一个 master。
func New(cfg Config) (*Reactor, error) {
	cfg = cfg.withDefaults()
	p, err := poller.New(cfg.MaxEvents)
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		cfg:        cfg,
		poll:       p,
		done:       make(chan struct{}),
		wake:       make(chan struct{}, cfg.Workers),
		queue:      queue.New(),
		listeners:  make(map[int]*Listener),
		lfds:       make(map[int]*Listener),
		tmu:        xsync.NewRBMutex(),
		table:      make(map[int]*Instance),
		events:     make([]poller.Event, cfg.MaxEvents),
		lastPulse:  time.Now(),
		pulseEvery: pulseInterval,
	}
	r.stats = newStats(r)
	r.running.Store(true)
	for i := 0; i < cfg.Workers; i++ {
		r.workers.Go(r.worker)
	}
	if !cfg.NoMaster {
		r.master.Go(func() {
			_ = r.Master(func() bool { return true })
		})
	}
	rlog.Infof("reactor started: workers=%d master=%v", cfg.Workers, !cfg.NoMaster)
	return r, nil
}

// Listen 在 port 上注册被动服务；每个接受的连接获得 inst 新建的协议。
func (r *Reactor) Listen(port int, inst Instantiator) (*Listener, error) {
	if inst == nil {
		return nil, ErrInvalidArgument
	}
	if !r.running.Load() {
		return nil, ErrClosed
	}
	l, err := NewListener(port, func(c *Connection) {
		if _, err := r.admit(c, inst.Instantiate()); err != nil {
			rlog.Warningf("admit %v: %v", c.RemoteAddr(), err)
			return
		}
		r.stats.accepted.Inc()
	})
	if err != nil {
		return nil, err
	}
	r.lmu.Lock()
	defer r.lmu.Unlock()
	if _, dup := r.listeners[l.Port()]; dup {
		_ = l.Close()
		return nil, fmt.Errorf("%w: port %d already registered", ErrSocketBind, l.Port())
	}
	// 电平触发注册，仅用于唤醒 epoll_wait；真正的 accept 在每轮 Poll 中统一排空
	if err := r.poll.Add(l.FD(), poller.In); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("%w: %w", ErrListenStart, err)
	}
	r.listeners[l.Port()] = l
	r.lfds[l.FD()] = l
	rlog.Infof("listening on port %d", l.Port())
	return l, nil
}

// Unlisten 注销并关闭 port 上的监听。
func (r *Reactor) Unlisten(port int) error {
	r.lmu.Lock()
	l, ok := r.listeners[port]
	if ok {
		delete(r.listeners, port)
		delete(r.lfds, l.FD())
	}
	r.lmu.Unlock()
	if !ok {
		return ErrInvalidArgument
	}
	_ = r.poll.Del(l.FD())
	return l.Close()
}

// admit 把连接放入实例表并以协议默认关注集合注册到 epoll。
func (r *Reactor) admit(c *Connection, p Protocol) (*Instance, error) {
	if p == nil {
		_ = c.Close()
		return nil, ErrInvalidArgument
	}
	inst := newInstance(r, c, p)
	r.tmu.Lock()
	if r.tableClosed {
		r.tmu.Unlock()
		_ = c.Close()
		return nil, ErrClosed
	}
	r.table[inst.fd] = inst
	r.tmu.Unlock()

	if err := inst.register(); err != nil {
		r.remove(inst)
		inst.release()
		return nil, err
	}
	rlog.Debugf("instance %s fd=%d peer=%v admitted", inst.id, inst.fd, c.RemoteAddr())
	return inst, nil
}

func (r *Reactor) lookup(fd int) *Instance {
	t := r.tmu.RLock()
	inst := r.table[fd]
	r.tmu.RUnlock(t)
	return inst
}

func (r *Reactor) remove(inst *Instance) {
	r.tmu.Lock()
	if r.table[inst.fd] == inst {
		delete(r.table, inst.fd)
	}
	r.tmu.Unlock()
}

// Count 返回存活实例数。
func (r *Reactor) Count() int {
	t := r.tmu.RLock()
	n := len(r.table)
	r.tmu.RUnlock(t)
	return n
}

// Done 在 reactor 停止（Shutdown 或 epoll 失败）时关闭。
func (r *Reactor) Done() <-chan struct{} { return r.done }

// Err 返回导致 reactor 停止的 epoll 错误。
func (r *Reactor) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// Poll 执行一次 master 循环：epoll_wait、排空监听、分类入队、按周期生成 pulse、唤醒 worker。
func (r *Reactor) Poll() error {
	r.pmu.Lock()
	defer r.pmu.Unlock()
	if !r.running.Load() {
		return ErrClosed
	}
	n, err := r.poll.Wait(r.events, int(r.cfg.PollTimeout/time.Millisecond))
	if err != nil {
		if !r.running.Load() {
			return ErrClosed
		}
		r.halt(err)
		return err
	}
	r.drainListeners()

	batch := make([]message, 0, n)
	r.lmu.Lock()
	for _, ev := range r.events[:n] {
		if _, ok := r.lfds[ev.FD]; ok {
			continue
		}
		var rs Reason
		if ev.Events.Has(poller.In | poller.RdHup | poller.Hup | poller.Err) {
			rs |= ReasonReadable
		}
		if ev.Events.Has(poller.Out | poller.Err) {
			rs |= ReasonWritable
		}
		if rs != 0 {
			batch = append(batch, message{fd: ev.FD, reason: rs})
		}
	}
	r.lmu.Unlock()

	if now := time.Now(); now.Sub(r.lastPulse) >= r.pulseEvery {
		r.lastPulse = now
		t := r.tmu.RLock()
		for fd, inst := range r.table {
			batch = append(batch, message{fd: fd, reason: ReasonPulse, inst: inst})
		}
		r.tmu.RUnlock(t)
		r.stats.pulses.Inc()
	}
	r.enqueue(batch...)
	return nil
}

// Master 在 pred 为真且 reactor 运行期间反复执行 Poll，供外部 goroutine 驱动。
func (r *Reactor) Master(pred func() bool) error {
	for r.running.Load() && pred() {
		if err := r.Poll(); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (r *Reactor) drainListeners() {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	for port, l := range r.listeners {
		if _, err := l.Accept(); err != nil {
			rlog.Warningf("accept on port %d: %v", port, err)
		}
	}
}

func (r *Reactor) enqueue(ds ...message) {
	if len(ds) == 0 {
		return
	}
	r.qmu.Lock()
	for _, d := range ds {
		r.queue.Add(d)
	}
	r.qmu.Unlock()
	r.notify(len(ds))
}

func (r *Reactor) notify(n int) {
	for i := 0; i < n && i < r.cfg.Workers; i++ {
		select {
		case r.wake <- struct{}{}:
		default:
			return
		}
	}
}

func (r *Reactor) dequeue() (message, bool) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.queue.Length() == 0 {
		return message{}, false
	}
	return r.queue.Remove().(message), true
}

func (r *Reactor) queueDepth() int {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	return r.queue.Length()
}

func (r *Reactor) worker() {
	t := time.NewTimer(r.cfg.WorkerWait)
	defer t.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		case <-t.C:
		}
		for r.running.Load() {
			d, ok := r.dequeue()
			if !ok {
				break
			}
			r.dispatch(d)
		}
		t.Reset(r.cfg.WorkerWait)
	}
}

// dispatch 查表、尝试独占、调用协议并应用返回的 Signal。忙则直接丢弃本次事件。
func (r *Reactor) dispatch(d message) {
	inst := r.lookup(d.fd)
	if inst == nil || (d.inst != nil && d.inst != inst) {
		r.stats.unmatched.Inc()
		return
	}
	if !inst.use.TryLock() {
		r.stats.busy.Inc()
		return
	}
	defer inst.use.Unlock()
	if !inst.live() {
		r.stats.unmatched.Inc()
		return
	}
	r.stats.dispatched.Inc()

	var (
		sig Signal
		err error
	)
	if inst.dying.Load() {
		sig = Terminate()
	} else {
		sig, err = inst.ready(d.reason)
		// Ready 执行期间到达的异步终止请求，其 pulse 可能因忙被丢弃
		if err == nil && inst.dying.Load() {
			sig = Terminate()
		}
	}
	if err != nil {
		r.stats.failures.Inc()
		rlog.Warningf("instance %s fd=%d peer=%v reason=%s: %v", inst.id, inst.fd, inst.conn.RemoteAddr(), d.reason, err)
		sig = Terminate()
	}
	r.apply(inst, sig)
}

func (r *Reactor) apply(inst *Instance, sig Signal) {
	switch {
	case sig.Mask.Has(MaskTerminate):
		r.terminate(inst)
		return
	case sig.Mask.Has(MaskSwitch):
		if sig.Switch == nil {
			rlog.Warningf("instance %s switch to nil protocol", inst.id)
			r.terminate(inst)
			return
		}
		if c, ok := inst.proto.(io.Closer); ok && inst.proto != sig.Switch {
			_ = c.Close()
		}
		inst.setProtocol(sig.Switch)
		if !r.arm(inst, sig.Switch.DefaultMask()) {
			return
		}
	default:
		if !r.arm(inst, sig.Mask) {
			return
		}
	}
	if sig.Wait > 0 {
		time.AfterFunc(sig.Wait, func() {
			if r.running.Load() {
				r.enqueue(message{fd: inst.fd, reason: ReasonPulse, inst: inst})
			}
		})
	}
}

func (r *Reactor) arm(inst *Instance, m Mask) bool {
	if m.Has(MaskTerminate) {
		r.terminate(inst)
		return false
	}
	if err := inst.updateInterest(m); err != nil {
		rlog.Warningf("instance %s fd=%d re-arm: %v", inst.id, inst.fd, err)
		r.terminate(inst)
		return false
	}
	return true
}

func (r *Reactor) terminate(inst *Instance) {
	r.remove(inst)
	inst.release()
	r.stats.terminated.Inc()
	rlog.Debugf("instance %s fd=%d terminated", inst.id, inst.fd)
}

// maskFunc 返回交给协议的异步关注回调。终止请求不在调用方 goroutine 执行，
// 而是标记并投递 pulse，由持有独占锁的 worker 完成。
func (r *Reactor) maskFunc(inst *Instance) func(Mask) {
	return func(m Mask) {
		if m.Has(MaskTerminate) {
			inst.dying.Store(true)
			if r.running.Load() {
				r.enqueue(message{fd: inst.fd, reason: ReasonPulse, inst: inst})
			}
			return
		}
		if err := inst.updateInterest(m); err != nil && !errors.Is(err, ErrClosed) {
			rlog.Warningf("instance %s async mask: %v", inst.id, err)
		}
	}
}

func (r *Reactor) halt(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
	rlog.Errorf("poll failed, reactor halted: %v", err)
	r.stop()
}

func (r *Reactor) stop() {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		close(r.done)
	})
}

// Shutdown 停止 master 与 worker，释放全部实例并关闭监听与 epoll。可重复调用。
// 调用前应确保关心的收发已经结束，存活实例会被直接释放。
func (r *Reactor) Shutdown() error {
	r.shutdownOnce.Do(func() {
		r.stop()
		_ = r.poll.Wake()
		r.master.Wait()
		r.workers.Wait()

		r.tmu.Lock()
		r.tableClosed = true
		insts := make([]*Instance, 0, len(r.table))
		for _, inst := range r.table {
			insts = append(insts, inst)
		}
		r.table = make(map[int]*Instance)
		r.tmu.Unlock()
		for _, inst := range insts {
			inst.release()
		}

		var merr *multierror.Error
		r.lmu.Lock()
		for port, l := range r.listeners {
			_ = r.poll.Del(l.FD())
			if err := l.Close(); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("listener %d: %w", port, err))
			}
		}
		r.listeners = make(map[int]*Listener)
		r.lfds = make(map[int]*Listener)
		r.lmu.Unlock()

		if err := r.poll.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
		r.shutdownErr = merr.ErrorOrNil()
		rlog.Infof("reactor stopped: released %d instances", len(insts))
	})
	return r.shutdownErr
}
