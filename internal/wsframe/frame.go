// Package wsframe implements RFC 6455 WebSocket frame encoding: opcodes,
// frame validation, masking and serialization. The service manager
// builds its close and ping frames through the factories and the
// constant this package exposes (MakeCloseFrame, MakePingFrame,
// Serialize, and EmptyUnmaskedPing); the concrete session in
// internal/wshub builds data frames directly and writes them through
// FrameWriter. Frames are only encoded here: nothing in this package
// decodes inbound frames.
package wsframe

import (
	"encoding/binary"
	"math/rand"

	"github.com/cockroachdb/errors"
)

// Opcode identifies the type of a WebSocket frame, per RFC 6455 §5.2.
type Opcode uint8

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

func (o Opcode) IsValid() bool {
	switch o {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	default:
		return false
	}
}

func (o Opcode) IsControl() bool {
	switch o {
	case OpcodeClose, OpcodePing, OpcodePong:
		return true
	default:
		return false
	}
}

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "CONTINUATION"
	case OpcodeText:
		return "TEXT"
	case OpcodeBinary:
		return "BINARY"
	case OpcodeClose:
		return "CLOSE"
	case OpcodePing:
		return "PING"
	case OpcodePong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// MaxControlPayloadSize is the WebSocket control-frame payload ceiling.
const MaxControlPayloadSize = 125

// MaxFramePayloadSize bounds a single data frame's payload.
const MaxFramePayloadSize = 16 * 1024 * 1024

// CloseAway is the close status code issued when a host removes a live
// session ("Away").
const CloseAway uint16 = 1001

var (
	ErrInvalidOpcode       = errors.New("wsframe: invalid opcode")
	ErrControlFrameTooLong = errors.New("wsframe: control frame payload exceeds 125 bytes")
	ErrFragmentedControl   = errors.New("wsframe: control frames cannot be fragmented")
	ErrFrameTooLarge       = errors.New("wsframe: frame exceeds maximum payload size")
	ErrReservedBitsSet     = errors.New("wsframe: reserved bits set without extension")
)

// Frame is a single RFC 6455 WebSocket frame.
type Frame struct {
	Fin     bool
	RSV1    bool
	RSV2    bool
	RSV3    bool
	Opcode  Opcode
	Masked  bool
	Payload []byte
}

// Validate checks the frame against the RFC 6455 structural rules the
// core relies on (control frames are never fragmented and never exceed
// the 125-byte ceiling).
func (f *Frame) Validate() error {
	if !f.Opcode.IsValid() {
		return errors.Wrapf(ErrInvalidOpcode, "opcode=%d", f.Opcode)
	}
	if f.Opcode.IsControl() && !f.Fin {
		return errors.Wrapf(ErrFragmentedControl, "opcode=%s", f.Opcode)
	}
	if f.Opcode.IsControl() && len(f.Payload) > MaxControlPayloadSize {
		return errors.Wrapf(ErrControlFrameTooLong, "opcode=%s len=%d", f.Opcode, len(f.Payload))
	}
	if len(f.Payload) > MaxFramePayloadSize {
		return errors.Wrapf(ErrFrameTooLarge, "len=%d", len(f.Payload))
	}
	if f.RSV1 || f.RSV2 || f.RSV3 {
		return errors.Wrap(ErrReservedBitsSet, "RSV bits")
	}
	return nil
}

// Serialize renders the frame to wire bytes. Masked frames receive a
// fresh random masking key; server-to-client frames in this codebase
// are always constructed unmasked (RFC 6455 only requires masking on
// the client-to-server direction).
func (f *Frame) Serialize() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	headerSize := 2
	payloadLen := len(f.Payload)
	switch {
	case payloadLen > 65535:
		headerSize += 8
	case payloadLen > 125:
		headerSize += 2
	}

	var mask [4]byte
	if f.Masked {
		// #nosec G404 -- frame masking is an obfuscation requirement, not a security boundary.
		_, _ = rand.Read(mask[:])
		headerSize += 4
	}

	buf := make([]byte, headerSize+payloadLen)
	pos := 0

	buf[pos] = 0
	if f.Fin {
		buf[pos] |= 0x80
	}
	buf[pos] |= byte(f.Opcode & 0x0F)
	pos++

	buf[pos] = 0
	if f.Masked {
		buf[pos] |= 0x80
	}
	switch {
	case payloadLen <= 125:
		buf[pos] |= byte(payloadLen)
		pos++
	case payloadLen <= 65535:
		buf[pos] |= 126
		pos++
		binary.BigEndian.PutUint16(buf[pos:pos+2], uint16(payloadLen))
		pos += 2
	default:
		buf[pos] |= 127
		pos++
		binary.BigEndian.PutUint64(buf[pos:pos+8], uint64(payloadLen))
		pos += 8
	}

	if f.Masked {
		copy(buf[pos:pos+4], mask[:])
		pos += 4
	}

	if payloadLen > 0 {
		copy(buf[pos:], f.Payload)
		if f.Masked {
			for i := 0; i < payloadLen; i++ {
				buf[pos+i] ^= mask[i%4]
			}
		}
	}

	return buf, nil
}

// MakeCloseFrame builds a Close control frame carrying the given status
// code and reason text, unmasked (server-to-client direction).
func MakeCloseFrame(code uint16, reason string) *Frame {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload[:2], code)
	copy(payload[2:], reason)
	return &Frame{Fin: true, Opcode: OpcodeClose, Payload: payload}
}

// MakePingFrame builds a Ping control frame. masked is almost always
// false for server-originated pings; it exists so a connector-side
// client built atop this package can reuse the same constructor.
func MakePingFrame(payload []byte, masked bool) (*Frame, error) {
	if len(payload) > MaxControlPayloadSize {
		return nil, errors.Wrapf(ErrControlFrameTooLong, "ping payload len=%d", len(payload))
	}
	return &Frame{Fin: true, Opcode: OpcodePing, Masked: masked, Payload: payload}, nil
}

// SerializeFrame serializes a frame to wire bytes; a thin top-level
// alias over Frame.Serialize so callers never need to reach into the
// struct themselves.
func SerializeFrame(f *Frame) ([]byte, error) {
	return f.Serialize()
}

// EmptyUnmaskedPing is the pre-built, zero-payload ping frame bytes used
// by the default broadping() variant. It is computed once at package
// init since an empty ping frame is a fixed byte sequence independent
// of any runtime state.
var EmptyUnmaskedPing = mustSerializeEmptyPing()

func mustSerializeEmptyPing() []byte {
	f := &Frame{Fin: true, Opcode: OpcodePing}
	b, err := f.Serialize()
	if err != nil {
		panic(err)
	}
	return b
}
