// Package bundle packs a TOML manifest of hex bytecode into a V4BC container.
//
// Code strings are whitespace-separated tokens. A token is either a hex byte
// ("50"), a run of hex bytes ("500100"), or "@NAME", which expands to the
// two-byte little-endian file-relative index of word NAME.
package bundle

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/v4link/internal/isa"
	"github.com/danmuck/v4link/internal/protocol/v4bc"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrUnknownWord   = errors.New("bundle: unknown word reference")
	ErrDuplicateWord = errors.New("bundle: duplicate word name")
	ErrBadCode       = errors.New("bundle: bad code")
)

// Manifest is the on-disk bundle description.
type Manifest struct {
	Main  string     `toml:"main"`
	Words []WordSpec `toml:"words"`
}

type WordSpec struct {
	Name string `toml:"name"`
	Code string `toml:"code"`
}

// ParseManifest decodes data, rejecting unknown keys.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("bundle: parse manifest: %w", err)
	}
	return m, nil
}

func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("bundle: read %s: %w", path, err)
	}
	return ParseManifest(data)
}

// Container resolves word references and validates every code stream.
func (m Manifest) Container() (v4bc.Container, error) {
	if len(m.Words) > v4bc.MaxWords {
		return v4bc.Container{}, fmt.Errorf("%w: %d > %d", v4bc.ErrTooManyWords, len(m.Words), v4bc.MaxWords)
	}
	index := make(map[string]int, len(m.Words))
	for i, w := range m.Words {
		name := strings.TrimSpace(w.Name)
		if name == "" || len(name) > v4bc.MaxNameLen {
			return v4bc.Container{}, fmt.Errorf("%w: word %d", v4bc.ErrInvalidName, i)
		}
		if _, dup := index[name]; dup {
			return v4bc.Container{}, fmt.Errorf("%w: %q", ErrDuplicateWord, name)
		}
		index[name] = i
	}

	out := v4bc.Container{Words: make([]v4bc.Word, 0, len(m.Words))}
	for _, w := range m.Words {
		name := strings.TrimSpace(w.Name)
		code, err := assemble(w.Code, index)
		if err != nil {
			return v4bc.Container{}, fmt.Errorf("word %q: %w", name, err)
		}
		out.Words = append(out.Words, v4bc.Word{Name: name, Code: code})
	}
	main, err := assemble(m.Main, index)
	if err != nil {
		return v4bc.Container{}, fmt.Errorf("main: %w", err)
	}
	out.Main = main
	return out, nil
}

// Pack loads the manifest at path and returns the encoded container.
func Pack(path string) ([]byte, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	c, err := m.Container()
	if err != nil {
		return nil, err
	}
	return v4bc.Encode(c)
}

func assemble(src string, index map[string]int) ([]byte, error) {
	var out []byte
	for _, tok := range strings.Fields(src) {
		if name, ok := strings.CutPrefix(tok, "@"); ok {
			idx, known := index[name]
			if !known {
				return nil, fmt.Errorf("%w: %q", ErrUnknownWord, name)
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(idx))
			continue
		}
		b, err := hex.DecodeString(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: token %q: %v", ErrBadCode, tok, err)
		}
		out = append(out, b...)
	}
	if err := isa.Walk(out, func(isa.Instruction) error { return nil }); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCode, err)
	}
	return out, nil
}
