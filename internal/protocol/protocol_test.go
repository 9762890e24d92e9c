package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrame_WriteThenRead_PreservesLines(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	lines := []string{"alice", "", "/pm bob hello there", "héllo wörld", "line one\nline two"}
	for _, l := range lines {
		req.NoError(WriteFrame(&buf, l))
	}

	for _, want := range lines {
		got, err := ReadFrame(&buf)
		req.NoError(err)
		req.Equal(want, got)
	}

	// Stream ended between frames
	_, err := ReadFrame(&buf)
	req.ErrorIs(err, io.EOF)
}

func TestFrame_Header_IsBigEndianByteLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "hé"))
	require.Equal(t, []byte{0x00, 0x03, 'h', 0xc3, 0xa9}, buf.Bytes())
}

func TestWriteFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, strings.Repeat("a", MaxFrameSize)))

	err := WriteFrame(&buf, strings.Repeat("a", MaxFrameSize+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrame_InvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	require.ErrorIs(t, WriteFrame(&buf, "\xff\xfe"), ErrInvalidFrame)
	require.Zero(t, buf.Len())
}

func TestReadFrame_Truncated(t *testing.T) {
	// Header announces 5 bytes, only 2 follow
	r := bytes.NewReader([]byte{0x00, 0x05, 'h', 'i'})
	_, err := ReadFrame(r)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// Half a header
	_, err = ReadFrame(bytes.NewReader([]byte{0x00}))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrame_InvalidUTF8(t *testing.T) {
	r := bytes.NewReader([]byte{0x00, 0x02, 0xff, 0xfe})
	_, err := ReadFrame(r)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestSystemLine(t *testing.T) {
	req := require.New(t)
	line := SystemLine("bob quit")
	req.Equal("{SYSTEM} bob quit", line)
	req.True(IsSystemLine(line))
	req.False(IsSystemLine("bob: {SYSTEM} fake"))
}

func TestIsCommand(t *testing.T) {
	require.True(t, IsCommand("/help"))
	require.True(t, IsCommand("/"))
	require.False(t, IsCommand("hello /help"))
	require.False(t, IsCommand(""))
}

func TestTruncate(t *testing.T) {
	req := require.New(t)
	req.Equal("short", Truncate("short"))

	// A two-byte rune straddling the limit is dropped whole
	long := strings.Repeat("a", MaxFrameSize-1) + "é"
	got := Truncate(long)
	req.True(Fits(got))
	req.Equal(MaxFrameSize-1, len(got))
	req.NoError(WriteFrame(io.Discard, got))
}
