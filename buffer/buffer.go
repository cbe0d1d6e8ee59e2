// Package buffer 提供连接读写使用的可增长环形字节缓冲：
// 尾部追加、头部丢弃、按下标随机访问。
package buffer

import (
	"errors"
	"io"

	"github.com/bytedance/gopkg/lang/mcache"
)

const MaxCapacity = 1 << 30

var ErrTooLarge = errors.New("buffer: capacity limit exceeded")

// Buffer 非并发安全，由持有连接的协议独占使用。
type Buffer struct {
	buf      []byte
	mask     int
	readPos  int
	writePos int
}

func roundPow2(n int) int {
	c := 1
	for c < n {
		c <<= 1
	}
	return c
}

// New 返回容量为 2 的幂次的缓冲。若 cap 非 2 的幂则向上取整。
func New(capacity int) *Buffer {
	c := roundPow2(capacity)
	return &Buffer{buf: mcache.Malloc(c), mask: c - 1}
}

func (b *Buffer) Cap() int { return len(b.buf) }

func (b *Buffer) Len() int { return b.writePos - b.readPos }

func (b *Buffer) Free() int { return b.Cap() - b.Len() }

// grow 保证至少还能写入 n 字节，内容线性化到新的块。
func (b *Buffer) grow(n int) error {
	need := b.Len() + n
	if need <= b.Cap() {
		return nil
	}
	if need > MaxCapacity {
		return ErrTooLarge
	}
	c := roundPow2(need)
	nb := mcache.Malloc(c)
	ln := b.Len()
	b.copyOut(nb, 0, ln)
	if b.buf != nil {
		mcache.Free(b.buf)
	}
	b.buf = nb
	b.mask = c - 1
	b.readPos = 0
	b.writePos = ln
	return nil
}

// copyOut 把从读指针偏移 off 开始的 n 字节拷贝到 dst。
func (b *Buffer) copyOut(dst []byte, off, n int) {
	if n <= 0 {
		return
	}
	start := (b.readPos + off) & b.mask
	end := start + n
	if end <= len(b.buf) {
		copy(dst, b.buf[start:end])
		return
	}
	l := len(b.buf) - start
	copy(dst[:l], b.buf[start:])
	copy(dst[l:n], b.buf[:end-len(b.buf)])
}

// Write 追加到尾部，必要时扩容。
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.grow(len(p)); err != nil {
		return 0, err
	}
	n := len(p)
	start := b.writePos & b.mask
	end := start + n
	if end <= len(b.buf) {
		copy(b.buf[start:end], p)
	} else {
		l := len(b.buf) - start
		copy(b.buf[start:], p[:l])
		copy(b.buf[:end-len(b.buf)], p[l:])
	}
	b.writePos += n
	return n, nil
}

func (b *Buffer) WriteString(s string) (int, error) { return b.Write([]byte(s)) }

func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// At 返回距读指针 i 处的字节，越界 panic。
func (b *Buffer) At(i int) byte {
	if i < 0 || i >= b.Len() {
		panic("buffer: index out of range")
	}
	return b.buf[(b.readPos+i)&b.mask]
}

// Peek 读取最多 n 字节但不前进读指针。
// 未跨越环尾时返回内部切片，调用方不可保留。
func (b *Buffer) Peek(n int) []byte {
	if n <= 0 {
		return nil
	}
	if ln := b.Len(); n > ln {
		n = ln
	}
	start := b.readPos & b.mask
	if start+n <= len(b.buf) {
		return b.buf[start : start+n]
	}
	out := make([]byte, n)
	b.copyOut(out, 0, n)
	return out
}

// Bytes 等价于 Peek(Len())。
func (b *Buffer) Bytes() []byte { return b.Peek(b.Len()) }

// IndexByte 返回 c 首次出现的偏移，没有则 -1。
func (b *Buffer) IndexByte(c byte) int {
	for i, ln := 0, b.Len(); i < ln; i++ {
		if b.buf[(b.readPos+i)&b.mask] == c {
			return i
		}
	}
	return -1
}

// Discard 前进读指针。
func (b *Buffer) Discard(n int) int {
	if ln := b.Len(); n > ln {
		n = ln
	}
	if n <= 0 {
		return 0
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.readPos, b.writePos = 0, 0
	}
	return n
}

// Read 消费式读取，实现 io.Reader。
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Len() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := len(p)
	if ln := b.Len(); n > ln {
		n = ln
	}
	b.copyOut(p, 0, n)
	b.Discard(n)
	return n, nil
}

func (b *Buffer) Reset() { b.readPos, b.writePos = 0, 0 }

// Release 归还底层内存，之后不可再使用。
func (b *Buffer) Release() {
	if b.buf != nil {
		mcache.Free(b.buf)
	}
	b.buf = nil
	b.mask = 0
	b.readPos, b.writePos = 0, 0
}
