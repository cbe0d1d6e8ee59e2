//go:build linux

// Package framed 为基于 codec 帧格式的请求/应答协议。
// 默认回显每条消息（请求压缩则应答压缩）；api 为 ApiClose 时终止连接。
// Async 模式下处理函数在独立 goroutine 中执行，结果通过异步关注回调唤醒写出。
package framed

import (
	"errors"
	"io"
	"sync"

	"github.com/legamerdc/reactor"
	"github.com/legamerdc/reactor/buffer"
	"github.com/legamerdc/reactor/codec"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("protocols")

const ApiClose uint16 = 0xFFFF

var errClose = errors.New("framed: close requested")

// Handler 处理一条请求并返回应答负载；返回 error 终止连接。
type Handler func(api uint16, payload []byte) ([]byte, error)

// Echo 原样返回负载。
func Echo(_ uint16, payload []byte) ([]byte, error) { return payload, nil }

type Options struct {
	MaxPayload int
	Handler    Handler // nil 时为 Echo
	Async      bool
}

// New 返回按 opts 构造协议的工厂。
func New(opts Options) reactor.Instantiator {
	if opts.Handler == nil {
		opts.Handler = Echo
	}
	return reactor.InstantiatorFunc(func() reactor.Protocol {
		return &Protocol{opts: opts, parser: codec.Parser{MaxPayload: opts.MaxPayload}}
	})
}

type Protocol struct {
	opts    Options
	parser  codec.Parser
	in, out *buffer.Buffer
	closing bool

	mu       sync.Mutex // 保护 pending/inflight/failed
	pending  []byte
	inflight int
	failed   error
	setMask  func(reactor.Mask)
}

func (p *Protocol) DefaultMask() reactor.Mask { return reactor.MaskRead }

func (p *Protocol) BindMask(set func(reactor.Mask)) { p.setMask = set }

func (p *Protocol) Ready(c *reactor.Connection, rs reactor.Reason) (reactor.Signal, error) {
	if p.in == nil {
		p.in, p.out = buffer.New(4<<10), buffer.New(4<<10)
	}
	if err := p.collect(); err != nil {
		return reactor.Signal{}, err
	}
	if rs.Readable() && !p.closing {
		_, err := c.ReadInto(p.in)
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return reactor.Signal{}, err
		}
		consumed, perr := p.parser.Parse(p.in.Bytes(), p.handle)
		p.in.Discard(consumed)
		if perr != nil && !errors.Is(perr, errClose) {
			return reactor.Signal{}, perr
		}
		if eof {
			p.closing = true
		}
	}
	if p.out.Len() > 0 {
		if _, err := c.WriteConsume(p.out); err != nil {
			return reactor.Signal{}, err
		}
	}
	p.mu.Lock()
	busy := p.inflight > 0 || len(p.pending) > 0
	p.mu.Unlock()
	switch {
	case p.out.Len() > 0:
		return reactor.Want(!p.closing, true), nil
	case p.closing && !busy:
		return reactor.Terminate(), nil
	}
	return reactor.Want(!p.closing, false), nil
}

func (p *Protocol) handle(m codec.Message) error {
	if m.Api == ApiClose {
		p.closing = true
		return errClose
	}
	if p.opts.Async {
		p.dispatchAsync(m)
		return nil
	}
	reply, err := p.opts.Handler(m.Api, m.Payload)
	if err != nil {
		return err
	}
	frame, err := codec.AppendFrame(nil, m.Api, reply, m.Compressed)
	if err != nil {
		return err
	}
	_, err = p.out.Write(frame)
	return err
}

func (p *Protocol) dispatchAsync(m codec.Message) {
	payload := append([]byte(nil), m.Payload...)
	p.mu.Lock()
	p.inflight++
	p.mu.Unlock()
	go func() {
		reply, err := p.opts.Handler(m.Api, payload)
		var frame []byte
		if err == nil {
			frame, err = codec.AppendFrame(nil, m.Api, reply, m.Compressed)
		}
		p.mu.Lock()
		p.inflight--
		if err != nil {
			p.failed = err
		} else {
			p.pending = append(p.pending, frame...)
		}
		p.mu.Unlock()
		if p.setMask == nil {
			return
		}
		if err != nil {
			plog.Warningf("async handler api=%d: %v", m.Api, err)
			p.setMask(reactor.MaskTerminate)
			return
		}
		p.setMask(reactor.MaskRead | reactor.MaskWrite)
	}()
}

// collect 把异步结果移入写缓冲。
func (p *Protocol) collect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed != nil {
		return p.failed
	}
	if len(p.pending) > 0 {
		if _, err := p.out.Write(p.pending); err != nil {
			return err
		}
		p.pending = p.pending[:0]
	}
	return nil
}

func (p *Protocol) Close() error {
	if p.in != nil {
		p.in.Release()
		p.out.Release()
		p.in, p.out = nil, nil
	}
	return nil
}
