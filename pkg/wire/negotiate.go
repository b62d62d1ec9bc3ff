package wire

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// SparkV1 is the only protocol version this codec defines.
const SparkV1 = "SPARKv1"

// Supported is the set of protocol versions this peer can speak.
var Supported = map[string]bool{SparkV1: true}

// Negotiate runs the two-role handshake over rw, using initiating to pick
// the initiator or responder side, and returns the agreed protocol name.
// Exactly one typed message codec name is returned on success; any
// deviation from the exact sequence specified for each role fails with
// ErrNegotiation.
func Negotiate(r *bufio.Reader, w io.Writer, initiating bool) (string, error) {
	if initiating {
		return negotiateInitiator(r, w)
	}
	return negotiateResponder(r, w)
}

func negotiateInitiator(r *bufio.Reader, w io.Writer) (string, error) {
	if err := writeSupported(w); err != nil {
		return "", err
	}
	remoteChoice, err := readProtocol(r)
	if err != nil {
		return "", err
	}
	if !Supported[remoteChoice] {
		return "", fmt.Errorf("%w: peer chose unsupported protocol %q", ErrNegotiation, remoteChoice)
	}
	if err := writeProtocol(w, remoteChoice); err != nil {
		return "", err
	}
	return remoteChoice, nil
}

func negotiateResponder(r *bufio.Reader, w io.Writer) (string, error) {
	proposed, err := readSupported(r)
	if err != nil {
		return "", err
	}
	choice := chooseProtocol(proposed)
	if choice == "" {
		return "", fmt.Errorf("%w: no proposed protocol is supported (proposed %v)", ErrNegotiation, proposed)
	}
	if err := writeProtocol(w, choice); err != nil {
		return "", err
	}
	remoteChoice, err := readProtocol(r)
	if err != nil {
		return "", err
	}
	if remoteChoice != choice {
		return "", fmt.Errorf("%w: peer echoed a different protocol %q (chose %q)", ErrNegotiation, remoteChoice, choice)
	}
	return choice, nil
}

func chooseProtocol(proposed []string) string {
	for _, name := range proposed {
		if Supported[name] {
			return name
		}
	}
	return ""
}

func writeSupported(w io.Writer) error {
	names := make([]string, 0, len(Supported))
	for name := range Supported {
		names = append(names, name)
	}
	return WriteFrame(w, "supports "+strings.Join(names, " "))
}

func readSupported(r *bufio.Reader) ([]string, error) {
	chunks, err := readTokens(r)
	if err != nil {
		return nil, err
	}
	if chunks[0] != "supports" {
		return nil, negotiationTokenError(chunks[0], "supports")
	}
	if len(chunks) < 2 {
		return nil, fmt.Errorf("%w: expected at least one protocol name", ErrNegotiation)
	}
	return chunks[1:], nil
}

func writeProtocol(w io.Writer, name string) error {
	return WriteFrame(w, "protocol "+name)
}

func readProtocol(r *bufio.Reader) (string, error) {
	chunks, err := readTokens(r)
	if err != nil {
		return "", err
	}
	if chunks[0] != "protocol" {
		return "", negotiationTokenError(chunks[0], "protocol")
	}
	if len(chunks) < 2 {
		return "", fmt.Errorf("%w: expected a protocol name", ErrNegotiation)
	}
	return chunks[1], nil
}

func readTokens(r *bufio.Reader) ([]string, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: end of stream during handshake", ErrNegotiation)
		}
		return nil, fmt.Errorf("%w: %v", ErrNegotiation, err)
	}
	chunks := strings.Fields(payload)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: empty handshake frame", ErrNegotiation)
	}
	return chunks, nil
}

func negotiationTokenError(got, expected string) error {
	if got == "not-supported" {
		return fmt.Errorf("%w: peer returned an error", ErrNegotiation)
	}
	return fmt.Errorf("%w: expected %q, read %q", ErrNegotiation, expected, got)
}
