//go:build linux

package reactor

import (
	"io"
	"net"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/legamerdc/reactor/buffer"
	"golang.org/x/sys/unix"
)

// 非阻塞 I/O 约定：
//   n > 0            已传输字节数
//   n == 0, err nil  会阻塞，稍后再试，不是错误
//   err != nil       连接不可用（对端有序关闭为 io.EOF）

const readChunk = 64 << 10

// Connection 是带非阻塞读写与零拷贝发送的 Socket。
type Connection struct {
	Socket
}

func newConnection(fd int, peer *net.TCPAddr) *Connection {
	c := &Connection{}
	c.fd.Store(int64(fd))
	c.peer = peer
	return c
}

func wouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// Read 单次 read(2)。
func (c *Connection) Read(p []byte) (int, error) {
	fd := c.FD()
	if fd < 0 {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case wouldBlock(err):
			return 0, nil
		case err != nil:
			return 0, err
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// ReadInto 读取直到会阻塞，追加到 b，返回本次读到的总字节数。
// 已读到部分数据后遇到 EOF 时，返回字节数与 io.EOF。
func (c *Connection) ReadInto(b *buffer.Buffer) (int, error) {
	tmp := mcache.Malloc(readChunk)
	defer mcache.Free(tmp)
	total := 0
	for {
		n, err := c.Read(tmp)
		if n > 0 {
			if _, werr := b.Write(tmp[:n]); werr != nil {
				return total, werr
			}
			total += n
		}
		if err != nil {
			return total, err
		}
		if n < len(tmp) {
			return total, nil
		}
	}
}

// Write 单次 sendmsg(MSG_NOSIGNAL)，对端已死时得到 EPIPE 而不是 SIGPIPE。
func (c *Connection) Write(p []byte) (int, error) {
	fd := c.FD()
	if fd < 0 {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == unix.EINTR:
			continue
		case wouldBlock(err):
			return 0, nil
		case err != nil:
			return 0, err
		}
		return n, nil
	}
}

// WriteFrom 写出 b 的可读部分但不消费。
func (c *Connection) WriteFrom(b *buffer.Buffer) (int, error) {
	return c.Write(b.Bytes())
}

// WriteConsume 写出并丢弃已写出的部分，直到会阻塞或写空。
func (c *Connection) WriteConsume(b *buffer.Buffer) (int, error) {
	total := 0
	for b.Len() > 0 {
		n, err := c.Write(b.Peek(readChunk))
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		b.Discard(n)
		total += n
	}
	return total, nil
}

// SendFile 单次 sendfile(2)，offset 由内核推进。
func (c *Connection) SendFile(fd int, offset *int64, count int) (int, error) {
	sfd := c.FD()
	if sfd < 0 {
		return 0, ErrClosed
	}
	if count <= 0 {
		return 0, nil
	}
	for {
		n, err := unix.Sendfile(sfd, fd, offset, count)
		switch {
		case err == unix.EINTR:
			continue
		case wouldBlock(err):
			return 0, nil
		case err != nil:
			return 0, err
		}
		return n, nil
	}
}

// Send 驱动一次 SendFileHelper 切片。
func (c *Connection) Send(h *SendFileHelper) (int, error) {
	return h.Work(c)
}

// Shutdown 半关闭写方向。
func (c *Connection) Shutdown() error {
	fd := c.FD()
	if fd < 0 {
		return ErrClosed
	}
	return unix.Shutdown(fd, unix.SHUT_WR)
}
