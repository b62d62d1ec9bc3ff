package wire

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := []string{"", "hello", "supports SPARKv1", strings.Repeat("x", 4000)}
	for _, p := range payloads {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, p))

		got, err := ReadFrame(bufio.NewReader(&buf))
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	_, err := ReadFrame(r)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameMalformedHeader(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("zzzz"))
	_, err := ReadFrame(r)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestReadFrameShortBody(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("00ffabc"))
	_, err := ReadFrame(r)
	require.Error(t, err)
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, strings.Repeat("x", MaxPayload))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
