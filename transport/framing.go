package transport

import (
	"encoding/binary"
	"io"

	"github.com/scalenet/spnet"
)

// Wire frame layout, shared by the byte-stream transports
// (tcp/tlstcp/ipc/abstract; ws sends one websocket frame per message
// with only a 2-byte header-length prefix, and inproc hands Messages
// over directly) so that message boundaries are preserved exactly
// as spec.md section 4.3 requires ("transport must preserve message
// boundaries"):
//
//	4 bytes  total length of header+body that follows (big endian)
//	2 bytes  header length (big endian)
//	N bytes  header
//	M bytes  body
const frameLenBytes = 4
const frameHdrLenBytes = 2
const frameOverhead = frameLenBytes + frameHdrLenBytes

// WriteFrame writes m to w in the shared wire format. It does not
// close or flush w.
func WriteFrame(w io.Writer, m *spnet.Message) error {
	hdr := m.Header()
	body := m.Body()
	total := uint32(len(hdr) + len(body))

	buf := make([]byte, frameOverhead)
	binary.BigEndian.PutUint32(buf[0:4], total)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(hdr)))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(hdr) > 0 {
		if _, err := w.Write(hdr); err != nil {
			return err
		}
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one frame from r and returns it as a fresh Message.
// maxSize enforces spec.md's recv_max_size option: a frame whose total
// length exceeds maxSize (when maxSize > 0) is drained from the wire
// and dropped silently, per spec.md section 7 ("Send larger than
// recv_max_size on peer -> silently dropped at the receiver, no peer
// notification"); ReadFrame returns (nil, nil) in that case so the
// caller can loop and read the next frame.
func ReadFrame(r io.Reader, maxSize int) (*spnet.Message, error) {
	var lenBuf [frameOverhead]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint32(lenBuf[0:4])
	hdrLen := binary.BigEndian.Uint16(lenBuf[4:6])

	if maxSize > 0 && int(total) > maxSize {
		if _, err := io.CopyN(io.Discard, r, int64(total)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	payload := make([]byte, total)
	if total > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	m := spnet.NewMessage(int(total) - int(hdrLen))
	if hdrLen > 0 {
		_ = m.AppendHeader(payload[:hdrLen])
	}
	if int(total)-int(hdrLen) > 0 {
		_ = m.AppendBody(payload[hdrLen:])
	}
	return m, nil
}
