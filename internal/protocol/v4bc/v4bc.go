// Package v4bc reads and writes V4BC bytecode containers: a main code block
// followed by named word definitions compiled against file-relative indices.
package v4bc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Magic = "V4BC"

	// HeaderLenV0 is the header size before word tables were added (minor < 2).
	HeaderLenV0 = 12
	// HeaderLen is the header size for minor >= 2.
	HeaderLen = 16

	VersionMajor = 0
	VersionMinor = 2

	MaxWords   = 255
	MaxNameLen = 255
)

var (
	ErrTruncated          = errors.New("v4bc: truncated container")
	ErrUnsupportedVersion = errors.New("v4bc: unsupported version")
	ErrTooManyWords       = errors.New("v4bc: too many words")
	ErrInvalidName        = errors.New("v4bc: invalid word name")
	ErrBadMagic           = errors.New("v4bc: bad magic")
)

// Word is one named definition. Calls inside Code use file-relative indices:
// index k names the k-th word of the same container.
type Word struct {
	Name string
	Code []byte
}

// Container is a decoded V4BC image.
type Container struct {
	Major byte
	Minor byte
	Flags byte
	Main  []byte
	Words []Word
}

// Detect reports whether payload should be treated as a container rather
// than raw bytecode.
func Detect(payload []byte) bool {
	return len(payload) >= HeaderLen && bytes.HasPrefix(payload, []byte(Magic))
}

type cursor struct {
	buf []byte
	off int
}

func (c *cursor) take(n int, what string) ([]byte, error) {
	if n < 0 || len(c.buf)-c.off < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes at offset %d, %d left", ErrTruncated, what, n, c.off, len(c.buf)-c.off)
	}
	out := c.buf[c.off : c.off+n]
	c.off += n
	return out, nil
}

func (c *cursor) u8(what string) (byte, error) {
	b, err := c.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u32(what string) (uint32, error) {
	b, err := c.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Parse decodes payload. Returned code slices are copies and do not alias payload.
func Parse(payload []byte) (Container, error) {
	c := &cursor{buf: payload}
	magic, err := c.take(len(Magic), "magic")
	if err != nil {
		return Container{}, err
	}
	if string(magic) != Magic {
		return Container{}, ErrBadMagic
	}
	hdr, err := c.take(4, "version")
	if err != nil {
		return Container{}, err
	}
	out := Container{Major: hdr[0], Minor: hdr[1], Flags: hdr[3]}
	if out.Major != VersionMajor {
		return Container{}, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, out.Major, out.Minor)
	}
	mainSize, err := c.u32("main_code_size")
	if err != nil {
		return Container{}, err
	}
	var count uint32
	if out.Minor >= 2 {
		if count, err = c.u32("word_count"); err != nil {
			return Container{}, err
		}
		if count > MaxWords {
			return Container{}, fmt.Errorf("%w: %d > %d", ErrTooManyWords, count, MaxWords)
		}
	}
	if uint64(mainSize) > uint64(len(payload)) {
		return Container{}, fmt.Errorf("%w: main_code_size %d exceeds container", ErrTruncated, mainSize)
	}
	main, err := c.take(int(mainSize), "main_code")
	if err != nil {
		return Container{}, err
	}
	out.Main = clone(main)

	out.Words = make([]Word, 0, count)
	for i := uint32(0); i < count; i++ {
		nameLen, err := c.u8("name_len")
		if err != nil {
			return Container{}, fmt.Errorf("word %d: %w", i, err)
		}
		if nameLen == 0 {
			return Container{}, fmt.Errorf("%w: word %d has an empty name", ErrInvalidName, i)
		}
		name, err := c.take(int(nameLen), "name")
		if err != nil {
			return Container{}, fmt.Errorf("word %d: %w", i, err)
		}
		codeLen, err := c.u32("code_len")
		if err != nil {
			return Container{}, fmt.Errorf("word %d: %w", i, err)
		}
		if uint64(codeLen) > uint64(len(payload)) {
			return Container{}, fmt.Errorf("word %d: %w: code_len %d exceeds container", i, ErrTruncated, codeLen)
		}
		code, err := c.take(int(codeLen), "code")
		if err != nil {
			return Container{}, fmt.Errorf("word %d: %w", i, err)
		}
		out.Words = append(out.Words, Word{Name: string(name), Code: clone(code)})
	}
	return out, nil
}

// Encode writes c in the current format. Zero Major/Minor select
// VersionMajor.VersionMinor.
func Encode(c Container) ([]byte, error) {
	minor := c.Minor
	if c.Major == 0 && minor == 0 {
		minor = VersionMinor
	}
	if c.Major != VersionMajor {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, c.Major, minor)
	}
	if minor < 2 && len(c.Words) > 0 {
		return nil, fmt.Errorf("%w: minor %d cannot carry words", ErrUnsupportedVersion, minor)
	}
	if len(c.Words) > MaxWords {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyWords, len(c.Words), MaxWords)
	}

	size := HeaderLenV0 + len(c.Main)
	if minor >= 2 {
		size = HeaderLen + len(c.Main)
	}
	for i, w := range c.Words {
		if len(w.Name) == 0 || len(w.Name) > MaxNameLen {
			return nil, fmt.Errorf("%w: word %d name length %d", ErrInvalidName, i, len(w.Name))
		}
		size += 1 + len(w.Name) + 4 + len(w.Code)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, Magic...)
	buf = append(buf, c.Major, minor, 0, c.Flags)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Main)))
	if minor >= 2 {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c.Words)))
	}
	buf = append(buf, c.Main...)
	for _, w := range c.Words {
		buf = append(buf, byte(len(w.Name)))
		buf = append(buf, w.Name...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(w.Code)))
		buf = append(buf, w.Code...)
	}
	return buf, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
