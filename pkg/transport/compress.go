package transport

import (
	"bytes"
	"compress/flate"
	"io"
)

// deflate compresses payload with DEFLATE. No send path calls it:
// SendReliable and SendUnreliable never compress a payload or set the
// COMPRESSED flag.
func deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflate decompresses a DEFLATE-compressed payload, as signaled by
// the wire packet's COMPRESSED flag.
func inflate(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	return io.ReadAll(r)
}
