package rethinkdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/leapstack-labs/changefeed/pkg/core"
)

type serverVersion struct {
	Success            bool   `json:"success"`
	MinProtocolVersion int    `json:"min_protocol_version"`
	MaxProtocolVersion int    `json:"max_protocol_version"`
	ServerVersion      string `json:"server_version"`
	Error              string `json:"error,omitempty"`
}

type authRequest struct {
	ProtocolVersion      *int   `json:"protocol_version,omitempty"`
	AuthenticationMethod string `json:"authentication_method,omitempty"`
	Authentication       string `json:"authentication"`
}

type authResponse struct {
	Success        bool   `json:"success"`
	Authentication string `json:"authentication"`
	Error          string `json:"error,omitempty"`
	ErrorCode      int    `json:"error_code,omitempty"`
}

func (r authResponse) err() error {
	if r.Success {
		return nil
	}
	return core.NewServerError("handshake", fmt.Sprintf("%s (code %d)", r.Error, r.ErrorCode))
}

// handshake runs the V1_0 protocol negotiation and SCRAM-SHA-256
// authentication on a freshly dialed connection.
func handshake(rw io.ReadWriter, user, password, nonce string) (string, error) {
	br := bufio.NewReader(rw)

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], magicV1_0)
	if _, err := rw.Write(magic[:]); err != nil {
		return "", err
	}

	var version serverVersion
	if err := readHandshake(br, &version); err != nil {
		return "", fmt.Errorf("reading server version: %w", err)
	}
	if !version.Success {
		return "", core.NewServerError("handshake", version.Error)
	}
	if version.MinProtocolVersion > 0 {
		return "", core.NewServerError("handshake",
			fmt.Sprintf("unsupported protocol version range %d-%d", version.MinProtocolVersion, version.MaxProtocolVersion))
	}

	scram := newScramClient(user, password, nonce)
	proto := 0
	if err := writeHandshake(rw, authRequest{
		ProtocolVersion:      &proto,
		AuthenticationMethod: "SCRAM-SHA-256",
		Authentication:       scram.first(),
	}); err != nil {
		return "", err
	}

	var first authResponse
	if err := readHandshake(br, &first); err != nil {
		return "", fmt.Errorf("reading server-first: %w", err)
	}
	if err := first.err(); err != nil {
		return "", err
	}

	final, err := scram.final(first.Authentication)
	if err != nil {
		return "", core.NewServerError("handshake", err.Error())
	}
	if err := writeHandshake(rw, authRequest{Authentication: final}); err != nil {
		return "", err
	}

	var last authResponse
	if err := readHandshake(br, &last); err != nil {
		return "", fmt.Errorf("reading server-final: %w", err)
	}
	if err := last.err(); err != nil {
		return "", err
	}
	if err := scram.verify(last.Authentication); err != nil {
		return "", core.NewServerError("handshake", err.Error())
	}
	if br.Buffered() > 0 {
		return "", core.NewTransportError("handshake", fmt.Errorf("unexpected %d bytes after handshake", br.Buffered()))
	}
	return version.ServerVersion, nil
}
