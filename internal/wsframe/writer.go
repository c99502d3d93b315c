package wsframe

import (
	"io"
)

// FrameWriter writes WebSocket messages to an underlying io.Writer,
// splitting into continuation frames when a message exceeds a caller
// supplied fragment size. This is the collaborator behind the service
// manager's buffer-vs-stream broadcast branch: the manager decides
// which path to take by comparing payload length against fragment-size;
// this writer is what actually performs the fragmentation once the
// stream path is chosen.
type FrameWriter struct {
	w io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame validates and writes a single frame.
func (fw *FrameWriter) WriteFrame(f *Frame) error {
	b, err := f.Serialize()
	if err != nil {
		return err
	}
	_, err = fw.w.Write(b)
	return err
}

// WriteMessage writes opcode/payload as one frame if it fits within
// fragmentSize, otherwise splits it into a leading frame (carrying the
// original opcode) followed by continuation frames, the last of which
// sets Fin.
func (fw *FrameWriter) WriteMessage(opcode Opcode, payload []byte, fragmentSize int) error {
	if fragmentSize <= 0 || len(payload) <= fragmentSize {
		return fw.WriteFrame(&Frame{Fin: true, Opcode: opcode, Payload: payload})
	}

	pos := 0
	remaining := len(payload)
	first := true

	for remaining > 0 {
		chunk := fragmentSize
		if remaining < chunk {
			chunk = remaining
		}

		frameOpcode := OpcodeContinuation
		if first {
			frameOpcode = opcode
			first = false
		}

		if err := fw.WriteFrame(&Frame{
			Fin:     chunk == remaining,
			Opcode:  frameOpcode,
			Payload: payload[pos : pos+chunk],
		}); err != nil {
			return err
		}

		pos += chunk
		remaining -= chunk
	}

	return nil
}
