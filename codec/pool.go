package codec

import (
	"errors"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	encoderPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return enc
	}}
	// 按解压上限分池：上限是解码器选项，解压过程中逐块检查，超限立即失败而不是先整体解出
	decoderPools = xsync.NewMapOf[int, *sync.Pool]()
)

func decoderPool(limit int) *sync.Pool {
	limit = max(limit, zstd.MinWindowSize)
	p, _ := decoderPools.LoadOrCompute(limit, func() *sync.Pool {
		return &sync.Pool{New: func() any {
			dec, _ := zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderLowmem(true),
				zstd.WithDecoderMaxMemory(uint64(limit)))
			return dec
		}}
	})
	return p
}

func compress(src []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	out := enc.EncodeAll(src, nil)
	encoderPool.Put(enc)
	return out
}

// decompress 解出 src，结果超过 limit 字节返回 ErrPayloadTooLarge；limit <= 0 时按 LongMaxLen。
func decompress(src []byte, limit int) ([]byte, error) {
	if limit <= 0 || limit > LongMaxLen {
		limit = LongMaxLen
	}
	pool := decoderPool(limit)
	dec := pool.Get().(*zstd.Decoder)
	defer pool.Put(dec)
	out, err := dec.DecodeAll(src, nil)
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
		return nil, ErrPayloadTooLarge
	}
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}
