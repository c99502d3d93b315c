package wshub

import (
	"bytes"
	"context"
	"io"
	"net"
	"time"

	"github.com/lk2023060901/wshub-go/internal/wsframe"
)

// compressingSession decorates a Session, running every outbound
// payload through a shared wsframe.Compressor before handing it to the
// wrapped session. Decompression is the peer's job — this core only
// ever writes to a connection, it never has to decode a client's
// inbound payload.
type compressingSession struct {
	Session
	compressor *wsframe.Compressor
}

func (s *compressingSession) Send(opcode wsframe.Opcode, payload []byte) error {
	compressed, err := s.compressor.Compress(nil, payload)
	if err != nil {
		return err
	}
	return s.Session.Send(opcode, compressed)
}

func (s *compressingSession) SendStream(opcode wsframe.Opcode, r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	compressed, err := s.compressor.Compress(nil, buf)
	if err != nil {
		return err
	}
	return s.Session.SendStream(opcode, bytes.NewReader(compressed))
}

// MarkOpen and SetWriteTimeout forward to the wrapped session when it
// supports them, so Host.Accept's openable check still reaches the
// underlying *BaseSession through this decorator.
func (s *compressingSession) MarkOpen() {
	if o, ok := s.Session.(openable); ok {
		o.MarkOpen()
	}
}

func (s *compressingSession) SetWriteTimeout(d time.Duration) {
	if o, ok := s.Session.(openable); ok {
		o.SetWriteTimeout(d)
	}
}

// NewCompressingBehaviorFactory wraps factory so every session it
// produces has its outbound Send/SendStream payloads compressed
// through compressor first. Intended for paths carrying large,
// compressible broadcast payloads (e.g. JSON snapshots); compressor's
// own SetMinCompressSize controls the threshold below which a payload
// passes through unchanged.
func NewCompressingBehaviorFactory(factory BehaviorFactory, compressor *wsframe.Compressor) BehaviorFactory {
	return func(ctx context.Context, id string, conn net.Conn) Session {
		return &compressingSession{Session: factory(ctx, id, conn), compressor: compressor}
	}
}
