//go:build linux

// Package echo 为按行回显的示例协议。收到一行 quit 时回复 bye 并在写完后终止连接。
package echo

import (
	"bytes"
	"errors"
	"io"

	"github.com/legamerdc/reactor"
	"github.com/legamerdc/reactor/buffer"
)

const (
	QuitCommand = "quit"
	QuitReply   = "bye\n"

	initialBuffer = 4 << 10
	// 单行上限，超出视为协议错误
	MaxLine = 64 << 10
)

var ErrLineTooLong = errors.New("echo: line too long")

// Protocol 零值可用，配合 reactor.Auto[echo.Protocol]()。
type Protocol struct {
	in, out *buffer.Buffer
	quit    bool
}

func (p *Protocol) DefaultMask() reactor.Mask { return reactor.MaskRead }

func (p *Protocol) Ready(c *reactor.Connection, rs reactor.Reason) (reactor.Signal, error) {
	if p.in == nil {
		p.in, p.out = buffer.New(initialBuffer), buffer.New(initialBuffer)
	}
	if rs.Readable() && !p.quit {
		_, err := c.ReadInto(p.in)
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return reactor.Signal{}, err
		}
		if err := p.consume(); err != nil {
			return reactor.Signal{}, err
		}
		if eof {
			p.quit = true
		}
	}
	if p.out.Len() > 0 {
		if _, err := c.WriteConsume(p.out); err != nil {
			return reactor.Signal{}, err
		}
		if p.out.Len() > 0 {
			return reactor.Want(!p.quit, true), nil
		}
	}
	if p.quit {
		return reactor.Terminate(), nil
	}
	return reactor.Want(true, false), nil
}

func (p *Protocol) consume() error {
	for !p.quit {
		i := p.in.IndexByte('\n')
		if i < 0 {
			if p.in.Len() > MaxLine {
				return ErrLineTooLong
			}
			return nil
		}
		line := p.in.Peek(i + 1)
		if string(bytes.TrimRight(line, "\r\n")) == QuitCommand {
			p.quit = true
			_, _ = p.out.WriteString(QuitReply)
		} else if _, err := p.out.Write(line); err != nil {
			return err
		}
		p.in.Discard(i + 1)
	}
	return nil
}

// Close 归还缓冲，连接释放时由 reactor 调用。
func (p *Protocol) Close() error {
	if p.in != nil {
		p.in.Release()
		p.out.Release()
		p.in, p.out = nil, nil
	}
	return nil
}
