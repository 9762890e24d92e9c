// Package protocol defines the wire format for all client-server communication.
// Each logical line travels as one frame: a 2-byte big-endian length followed
// by that many bytes of UTF-8 text.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFrameSize is the largest payload a 16-bit length prefix can carry.
	MaxFrameSize = 1<<16 - 1

	// CommandMarker prefixes every client command line.
	CommandMarker = "/"

	// SystemTag prefixes lines originated by the server itself.
	SystemTag = "{SYSTEM}"
)

var (
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	ErrInvalidFrame  = errors.New("protocol: frame is not valid UTF-8")
)

// WriteFrame encodes s as a single frame. The header and payload go out in one
// Write so concurrent writers serialized by the caller never interleave.
func WriteFrame(w io.Writer, s string) error {
	if len(s) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(s))
	}
	if !utf8.ValidString(s) {
		return ErrInvalidFrame
	}
	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	_, err := w.Write(buf)
	return err
}

// ReadFrame decodes the next frame from r. It returns io.EOF only when the
// stream ends cleanly between frames.
func ReadFrame(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", err
	}
	buf := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", ErrInvalidFrame
	}
	return string(buf), nil
}

// Fits reports whether s can be sent as a single frame.
func Fits(s string) bool {
	return len(s) <= MaxFrameSize
}

// Truncate shortens s to fit in one frame without splitting a UTF-8 sequence.
func Truncate(s string) string {
	if Fits(s) {
		return s
	}
	cut := MaxFrameSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// IsCommand reports whether line should be handled as a command.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, CommandMarker)
}

// SystemLine tags text as a server announcement.
func SystemLine(text string) string {
	return SystemTag + " " + text
}

// IsSystemLine reports whether line was produced by SystemLine.
func IsSystemLine(line string) bool {
	return strings.HasPrefix(line, SystemTag+" ")
}
