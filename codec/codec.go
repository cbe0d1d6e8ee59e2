// Package codec 实现带可选 zstd 压缩与批量打包的长度前缀帧格式，
// 供 framed 示例协议与 client 使用。
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Message 为一条带 api 编号的消息。
type Message struct {
	Api        uint16
	Payload    []byte
	Compressed bool // 解析时为帧是否压缩，批量帧内的消息恒为 true
}

var ErrPayloadTooLarge = errors.New("codec: payload too large")

// AppendFrame 把单条消息编码为一帧追加到 dst。
func AppendFrame(dst []byte, api uint16, payload []byte, compressed bool) ([]byte, error) {
	body := payload
	if compressed {
		body = compress(payload)
	}
	dst, err := AppendHeader(dst, len(body), compressed, false)
	if err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint16(dst, api)
	return append(dst, body...), nil
}

// AppendBatch 把一组消息编码为批量帧（总是压缩，无 api 字段）。
// 批前镜像：uvarint(count) + { api u16 | uvarint(len) | payload }*
func AppendBatch(dst []byte, msgs []Message) ([]byte, error) {
	var pre bytes.Buffer
	pre.Write(binary.AppendUvarint(nil, uint64(len(msgs))))
	for _, m := range msgs {
		pre.Write(binary.BigEndian.AppendUint16(nil, m.Api))
		pre.Write(binary.AppendUvarint(nil, uint64(len(m.Payload))))
		pre.Write(m.Payload)
	}
	body := compress(pre.Bytes())
	dst, err := AppendHeader(dst, len(body), true, true)
	if err != nil {
		return dst, err
	}
	return append(dst, body...), nil
}

// Parser 按帧解析。MaxPayload 限制单帧的线上长度与解压后长度（批量帧按解压后的整个批体计），
// 为 0 时仅受 LongMaxLen 约束。
type Parser struct {
	MaxPayload int
}

// Parse 尝试从 buf 解析尽可能多的完整帧，返回已消费字节数。
// 不完整的尾帧保留给下次调用；fn 返回错误时立即停止。
func (p *Parser) Parse(buf []byte, fn func(m Message) error) (consumed int, _ error) {
	for {
		rest := buf[consumed:]
		h, err := DecodeHeader(rest)
		if errors.Is(err, ErrHeaderTooShort) {
			return consumed, nil
		}
		if err != nil {
			return consumed, err
		}
		if p.MaxPayload > 0 && h.Len > p.MaxPayload {
			return consumed, ErrPayloadTooLarge
		}
		if !h.Batched {
			total := h.Size + 2 + h.Len
			if len(rest) < total {
				return consumed, nil
			}
			m := Message{
				Api:        binary.BigEndian.Uint16(rest[h.Size:]),
				Payload:    rest[h.Size+2 : total],
				Compressed: h.Compressed,
			}
			if h.Compressed {
				if m.Payload, err = decompress(m.Payload, p.MaxPayload); err != nil {
					return consumed, err
				}
			}
			if err := fn(m); err != nil {
				return consumed, err
			}
			consumed += total
			continue
		}
		total := h.Size + h.Len
		if len(rest) < total {
			return consumed, nil
		}
		pre, err := decompress(rest[h.Size:total], p.MaxPayload)
		if err != nil {
			return consumed, err
		}
		consumed += total
		if err := p.unbatch(pre, fn); err != nil {
			return consumed, err
		}
	}
}

func (p *Parser) unbatch(pre []byte, fn func(m Message) error) error {
	r := bytes.NewReader(pre)
	num, err := binary.ReadUvarint(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < num; i++ {
		var ab [2]byte
		if _, err := io.ReadFull(r, ab[:]); err != nil {
			return err
		}
		ln, err := binary.ReadUvarint(r)
		if err != nil {
			return err
		}
		if p.MaxPayload > 0 && ln > uint64(p.MaxPayload) {
			return ErrPayloadTooLarge
		}
		if ln > uint64(r.Len()) {
			return io.ErrUnexpectedEOF
		}
		msg := make([]byte, ln)
		if _, err := io.ReadFull(r, msg); err != nil {
			return err
		}
		if err := fn(Message{Api: binary.BigEndian.Uint16(ab[:]), Payload: msg, Compressed: true}); err != nil {
			return err
		}
	}
	return nil
}
