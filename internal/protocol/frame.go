package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/okonogi/gamehall/internal/constants"
)

// WriteFrame writes one length-prefixed frame to w.
// The header is a u32 big-endian body length; the body must be 1..MaxFrameSize bytes.
// Header and body go out in a single Write so concurrent writers guarded by a
// mutex never interleave partial frames.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("write frame: empty body")
	}
	if len(body) > constants.MaxFrameSize {
		return fmt.Errorf("write frame: body %d bytes exceeds limit %d", len(body), constants.MaxFrameSize)
	}

	buf := framePool.Get(constants.FrameHeaderSize + len(body))
	defer framePool.Put(buf)

	binary.BigEndian.PutUint32(buf[:constants.FrameHeaderSize], uint32(len(body)))
	copy(buf[constants.FrameHeaderSize:], body)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and returns its body.
// A clean peer close before any header byte surfaces as io.EOF; a close in
// the middle of a frame surfaces as a wrapped io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [constants.FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	n := int(binary.BigEndian.Uint32(header[:]))
	if n == 0 {
		return nil, fmt.Errorf("read frame: empty body")
	}
	if n > constants.MaxFrameSize {
		return nil, fmt.Errorf("read frame: body %d bytes exceeds limit %d", n, constants.MaxFrameSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return body, nil
}

// WriteMessage frames a text message. Every protocol in this system is
// line-like ASCII, so string in, string out is the common path.
func WriteMessage(w io.Writer, msg string) error {
	return WriteFrame(w, []byte(msg))
}

// ReadMessage reads one frame and returns its body as a string.
func ReadMessage(r io.Reader) (string, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var framePool = NewBytePool(constants.DefaultFrameBufSize)
