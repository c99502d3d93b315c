package wsframe

import (
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// Compressor is the optional compression extension a frame codec may
// apply to large data-frame payloads before fragmentation. It is not
// part of the core's required collaborator surface; broadcast callers
// that want it wrap their payload through Compress before calling the
// manager.
type Compressor struct {
	enc             *zstd.Encoder
	dec             *zstd.Decoder
	minCompressSize int
}

// NewCompressor creates a Compressor whose encoder concurrency is
// runtime.NumCPU(), the machine's logical CPU count; neither GOMAXPROCS
// nor a cgroup quota is consulted, since zstd's own encoder concurrency
// only needs a reasonable default, not an exact quota.
func NewCompressor() (*Compressor, error) {
	return NewCompressorWithConcurrency(0)
}

// NewCompressorWithConcurrency creates a Compressor with an explicit
// zstd encoder concurrency; concurrency <= 0 defaults to runtime.NumCPU().
func NewCompressorWithConcurrency(concurrency int) (*Compressor, error) {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(concurrency),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Compressor{enc: enc, dec: dec}, nil
}

// SetMinCompressSize sets the payload-length threshold below which
// Compress returns the input unchanged.
func (c *Compressor) SetMinCompressSize(n int) {
	if n < 0 {
		n = 0
	}
	c.minCompressSize = n
}

func (c *Compressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	if c.minCompressSize > 0 && len(src) < c.minCompressSize {
		return src, nil
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *Compressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil || c.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	return c.dec.DecodeAll(src, dst[:0])
}

func (c *Compressor) Close() {
	if c == nil {
		return
	}
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}
