package codec

import (
	"encoding/binary"
	"errors"
)

// 帧头（大端）：
// 短头 2B：bit15 Compressed | bit14 Batched | bit13 Ext=0 | bit12..0 Len
// 长头 4B：bit31 Compressed | bit30 Batched | bit29 Ext=1 | bit28..0 Len
// 非批量帧在头后紧跟 2B api，Len 不含 api。Batched 隐含 Compressed。

const (
	ShortMaxLen = (1 << 13) - 1
	LongMaxLen  = (1 << 29) - 1

	bitCompressed = 1 << 31
	bitBatched    = 1 << 30
	bitExt        = 1 << 29
)

var (
	ErrHeaderTooShort   = errors.New("codec: header too short")
	ErrLengthOutOfRange = errors.New("codec: length out of range")
)

// Header 为解码后的帧头。
type Header struct {
	Len        int
	Compressed bool
	Batched    bool
	Size       int // 头本身占用的字节数
}

// AppendHeader 把帧头追加到 dst。
func AppendHeader(dst []byte, length int, compressed, batched bool) ([]byte, error) {
	if length < 0 || length > LongMaxLen {
		return dst, ErrLengthOutOfRange
	}
	var v uint32
	if compressed || batched {
		v |= bitCompressed
	}
	if batched {
		v |= bitBatched
	}
	if length <= ShortMaxLen {
		v = v>>16 | uint32(length)
		return binary.BigEndian.AppendUint16(dst, uint16(v)), nil
	}
	v |= bitExt | uint32(length)
	return binary.BigEndian.AppendUint32(dst, v), nil
}

// DecodeHeader 从 b 解析帧头。
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < 2 {
		return Header{}, ErrHeaderTooShort
	}
	v := uint32(binary.BigEndian.Uint16(b)) << 16
	size := 2
	if v&bitExt != 0 {
		if len(b) < 4 {
			return Header{}, ErrHeaderTooShort
		}
		v = binary.BigEndian.Uint32(b)
		size = 4
	}
	h := Header{
		Compressed: v&bitCompressed != 0,
		Batched:    v&bitBatched != 0,
		Size:       size,
	}
	if size == 2 {
		h.Len = int(v>>16) & ShortMaxLen
	} else {
		h.Len = int(v & LongMaxLen)
	}
	return h, nil
}
