//go:build linux

package reactor

import "time"

// Reason 为一次 Ready 调用的触发原因（位掩码）。
type Reason uint8

const (
	ReasonReadable Reason = 1 << iota
	ReasonWritable
	ReasonPulse
)

func (r Reason) Readable() bool { return r&ReasonReadable != 0 }
func (r Reason) Writable() bool { return r&ReasonWritable != 0 }
func (r Reason) Pulse() bool    { return r&ReasonPulse != 0 }

func (r Reason) String() string {
	s := ""
	if r.Readable() {
		s += "r"
	}
	if r.Writable() {
		s += "w"
	}
	if r.Pulse() {
		s += "p"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Mask 为协议对 reactor 的指令位。
type Mask uint8

const (
	MaskTerminate Mask = 1 << iota
	MaskRead
	MaskWrite
	MaskSwitch
)

func (m Mask) Has(b Mask) bool { return m&b != 0 }

// Signal 为一次 Ready 调用的返回指令。
// MaskSwitch 置位时 Switch 为新协议；Wait > 0 时在该时长后额外投递一次 pulse。
type Signal struct {
	Mask   Mask
	Switch Protocol
	Wait   time.Duration
}

// Terminate 终止连接。
func Terminate() Signal { return Signal{Mask: MaskTerminate} }

// Want 以一次性方式重新关注读/写。
func Want(read, write bool) Signal {
	var m Mask
	if read {
		m |= MaskRead
	}
	if write {
		m |= MaskWrite
	}
	return Signal{Mask: m}
}

// SwitchTo 原地替换当前协议，关注集合重置为 p.DefaultMask()。
func SwitchTo(p Protocol) Signal { return Signal{Mask: MaskSwitch, Switch: p} }

// After 附加等待提示。
func (s Signal) After(d time.Duration) Signal {
	s.Wait = d
	return s
}

// Protocol 为每连接的可插拔状态机。
// 同一连接上 Ready 不会被并发调用；返回 error 或 panic 都会终止该连接。
type Protocol interface {
	Ready(c *Connection, r Reason) (Signal, error)
	DefaultMask() Mask
}

// MaskBinder 可选实现：reactor 在协议生效时交给它一个回调，
// 协议可在 Ready 之外（如外部事件完成时）异步请求新的关注集合。
type MaskBinder interface {
	BindMask(set func(Mask))
}

// Instantiator 为协议工厂，需并发安全。
type Instantiator interface {
	Instantiate() Protocol
}

// InstantiatorFunc 把函数适配为 Instantiator。
type InstantiatorFunc func() Protocol

func (f InstantiatorFunc) Instantiate() Protocol { return f() }

// Auto 返回以零值 T 构造协议的工厂。
func Auto[T any, P interface {
	*T
	Protocol
}]() Instantiator {
	return InstantiatorFunc(func() Protocol { return P(new(T)) })
}

// ConnectObserver 可选实现：Connect 握手在异步阶段失败时得到通知。
type ConnectObserver interface {
	OnConnectError(err error)
}
