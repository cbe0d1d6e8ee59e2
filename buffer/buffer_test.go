package buffer

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendDiscardRandomAccess(t *testing.T) {
	b := New(5)
	defer b.Release()
	require.Equal(t, 8, b.Cap())

	_, err := b.WriteString("hello")
	require.NoError(t, err)
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, byte('e'), b.At(1))

	assert.Equal(t, 2, b.Discard(2))
	assert.Equal(t, "llo", string(b.Bytes()))
	assert.Equal(t, byte('l'), b.At(0))
	assert.Panics(t, func() { b.At(3) })
}

func TestWrapAroundAndGrow(t *testing.T) {
	b := New(8)
	defer b.Release()

	_, _ = b.WriteString("abcdef")
	b.Discard(4)
	// 写入跨越环尾
	_, _ = b.WriteString("ghijk")
	assert.Equal(t, "efghijk", string(b.Peek(100)))
	assert.Equal(t, 8, b.Cap())

	// 超出容量触发扩容并线性化
	_, err := b.WriteString(strings.Repeat("z", 20))
	require.NoError(t, err)
	assert.Equal(t, 32, b.Cap())
	assert.Equal(t, "efghijk"+strings.Repeat("z", 20), string(b.Bytes()))
	assert.Equal(t, 2, b.IndexByte('g'))
	assert.Equal(t, -1, b.IndexByte('q'))
}

func TestReadConsumes(t *testing.T) {
	b := New(4)
	defer b.Release()
	_, _ = b.Write([]byte("0123456789"))

	var out bytes.Buffer
	n, err := io.Copy(&out, b)
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)
	assert.Equal(t, "0123456789", out.String())
	assert.Zero(t, b.Len())
}

func TestTooLarge(t *testing.T) {
	b := &Buffer{}
	_, err := b.Write(make([]byte, 0))
	require.NoError(t, err)
	assert.ErrorIs(t, b.grow(MaxCapacity+1), ErrTooLarge)
}
