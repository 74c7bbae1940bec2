package rethinkdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	// magicV1_0 opens a V1_0 handshake.
	magicV1_0 uint32 = 0x34c2bdc3

	headerSize = 12
	// maxFrame bounds a single response payload.
	maxFrame = 64 << 20
)

// writeFrame sends one query: an 8-byte little-endian token, a 4-byte
// little-endian length, then the JSON payload.
func writeFrame(w io.Writer, token uint64, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], token)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (uint64, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	token := binary.LittleEndian.Uint64(hdr[0:8])
	n := binary.LittleEndian.Uint32(hdr[8:12])
	if n > maxFrame {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return token, payload, nil
}

// writeHandshake sends a null-terminated JSON handshake message.
func writeHandshake(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, 0))
	return err
}

func readHandshake(r *bufio.Reader, v any) error {
	b, err := r.ReadBytes(0)
	if err != nil {
		return err
	}
	return json.Unmarshal(b[:len(b)-1], v)
}
