//go:build linux

// Package static 通过 sendfile 提供只读文件下载。
//
// 请求为一行：`<path> [offset [count]]\n`，path 相对 Root。
// 成功时直接传输文件内容后关闭连接；失败时回复 `ERR <reason>\n` 后关闭。
package static

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/legamerdc/reactor"
	"github.com/legamerdc/reactor/buffer"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("protocols")

const maxRequestLine = 4 << 10

var (
	ErrBadRequest = errors.New("static: bad request")
	ErrForbidden  = errors.New("static: path escapes root")
)

// New 返回以 root 为根目录的工厂。
func New(root string) reactor.Instantiator {
	return reactor.InstantiatorFunc(func() reactor.Protocol {
		return &Protocol{root: root}
	})
}

type Protocol struct {
	root string
	in   *buffer.Buffer
	out  *buffer.Buffer // 错误应答
	file *reactor.SendFileHelper
}

func (p *Protocol) DefaultMask() reactor.Mask { return reactor.MaskRead }

func (p *Protocol) Ready(c *reactor.Connection, rs reactor.Reason) (reactor.Signal, error) {
	switch {
	case p.file != nil:
		return p.transfer(c)
	case p.out != nil:
		return p.flushError(c)
	}
	if !rs.Readable() {
		return reactor.Want(true, false), nil
	}
	if p.in == nil {
		p.in = buffer.New(512)
	}
	_, err := c.ReadInto(p.in)
	eof := errors.Is(err, io.EOF)
	if err != nil && !eof {
		return reactor.Signal{}, err
	}
	i := p.in.IndexByte('\n')
	if i < 0 {
		switch {
		case eof:
			return reactor.Signal{}, io.ErrUnexpectedEOF
		case p.in.Len() > maxRequestLine:
			return reactor.Signal{}, ErrBadRequest
		}
		return reactor.Want(true, false), nil
	}
	line := string(bytes.TrimRight(p.in.Peek(i), "\r"))
	p.in.Discard(i + 1)

	h, err := p.open(line)
	if err != nil {
		plog.Infof("request %q from %v: %v", line, c.RemoteAddr(), err)
		p.out = buffer.New(64)
		_, _ = fmt.Fprintf(p.out, "ERR %v\n", err)
		return p.flushError(c)
	}
	p.file = h
	return p.transfer(c)
}

// open 解析请求行并打开文件。
func (p *Protocol) open(line string) (*reactor.SendFileHelper, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 3 {
		return nil, ErrBadRequest
	}
	rel := filepath.Clean(strings.TrimPrefix(fields[0], "/"))
	if !filepath.IsLocal(rel) {
		return nil, ErrForbidden
	}
	var offset, count int64 = 0, math.MaxInt64
	var err error
	if len(fields) > 1 {
		if offset, err = strconv.ParseInt(fields[1], 10, 64); err != nil || offset < 0 {
			return nil, ErrBadRequest
		}
	}
	if len(fields) > 2 {
		if count, err = strconv.ParseInt(fields[2], 10, 64); err != nil || count < 0 {
			return nil, ErrBadRequest
		}
	}
	return reactor.NewSendFileHelper(filepath.Join(p.root, rel), offset, count)
}

func (p *Protocol) transfer(c *reactor.Connection) (reactor.Signal, error) {
	for !p.file.Done() {
		n, err := c.Send(p.file)
		if err != nil {
			return reactor.Signal{}, err
		}
		if n == 0 {
			return reactor.Want(false, true), nil
		}
	}
	_ = c.Shutdown()
	return reactor.Terminate(), nil
}

func (p *Protocol) flushError(c *reactor.Connection) (reactor.Signal, error) {
	if _, err := c.WriteConsume(p.out); err != nil {
		return reactor.Signal{}, err
	}
	if p.out.Len() > 0 {
		return reactor.Want(false, true), nil
	}
	return reactor.Terminate(), nil
}

// Close 关闭文件并归还缓冲。
func (p *Protocol) Close() error {
	var err error
	if p.file != nil {
		err = p.file.Close()
		p.file = nil
	}
	for _, b := range []*buffer.Buffer{p.in, p.out} {
		if b != nil {
			b.Release()
		}
	}
	p.in, p.out = nil, nil
	return err
}
