//go:build linux

package reactor

import (
	"fmt"
	"io"
	"os"
)

// 单次 sendfile 的切片上限
const maxSendfileChunk = 1 << 30

// SendFileHelper 把整文件传输切成多次非阻塞 sendfile，跨多个调度周期驱动。
type SendFileHelper struct {
	f         *os.File
	offset    int64
	remaining int64
}

// NewSendFileHelper 打开 path，从 offset 起最多发送 count 字节（按文件实际剩余大小截断）。
func NewSendFileHelper(path string, offset, count int64) (*SendFileHelper, error) {
	if offset < 0 || count < 0 {
		return nil, ErrInvalidArgument
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileNotFound, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrFileNotFound, err)
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	if offset > st.Size() {
		f.Close()
		return nil, fmt.Errorf("%w: %d > %d", ErrBadOffset, offset, st.Size())
	}
	if left := st.Size() - offset; count > left {
		count = left
	}
	return &SendFileHelper{f: f, offset: offset, remaining: count}, nil
}

// Work 发送一个切片；返回 0, nil 表示会阻塞。
func (h *SendFileHelper) Work(c *Connection) (int, error) {
	if h.remaining == 0 {
		return 0, nil
	}
	if h.f == nil {
		return 0, ErrClosed
	}
	chunk := h.remaining
	if chunk > maxSendfileChunk {
		chunk = maxSendfileChunk
	}
	off := h.offset
	n, err := c.SendFile(int(h.f.Fd()), &off, int(chunk))
	if n > 0 {
		h.offset = off
		h.remaining -= int64(n)
	}
	if err != nil {
		return n, err
	}
	if n == 0 && h.eof() {
		// 文件在传输过程中被截断
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (h *SendFileHelper) eof() bool {
	st, err := h.f.Stat()
	return err == nil && st.Size() <= h.offset
}

// Done 剩余字节为 0。
func (h *SendFileHelper) Done() bool { return h.remaining == 0 }

// Remaining 剩余待发送字节数。
func (h *SendFileHelper) Remaining() int64 { return h.remaining }

// Close 关闭文件，可重复调用。
func (h *SendFileHelper) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	return err
}
