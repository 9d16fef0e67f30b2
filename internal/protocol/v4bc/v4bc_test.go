package v4bc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func sample() Container {
	return Container{
		Main: []byte{0x50, 0x01, 0x00, 0x51},
		Words: []Word{
			{Name: "SQ", Code: []byte{0x01, 0x12, 0x51}},
			{Name: "QUAD", Code: []byte{0x50, 0x00, 0x00, 0x50, 0x00, 0x00, 0x51}},
		},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	raw, err := Encode(sample())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !Detect(raw) {
		t.Fatalf("encoded container not detected")
	}
	if raw[4] != VersionMajor || raw[5] != VersionMinor {
		t.Fatalf("version bytes=% x", raw[4:6])
	}
	if binary.LittleEndian.Uint32(raw[12:16]) != 2 {
		t.Fatalf("word_count=% x", raw[12:16])
	}
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := sample()
	if !bytes.Equal(got.Main, want.Main) || len(got.Words) != len(want.Words) {
		t.Fatalf("got=%+v", got)
	}
	for i := range want.Words {
		if got.Words[i].Name != want.Words[i].Name || !bytes.Equal(got.Words[i].Code, want.Words[i].Code) {
			t.Fatalf("word %d: got=%+v want=%+v", i, got.Words[i], want.Words[i])
		}
	}
}

func TestParseDoesNotAliasPayload(t *testing.T) {
	raw, _ := Encode(sample())
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for i := range raw {
		raw[i] = 0
	}
	if got.Words[0].Name != "SQ" || got.Main[0] != 0x50 {
		t.Fatalf("parsed container aliases payload: %+v", got)
	}
}

func TestParseLegacyHeader(t *testing.T) {
	raw := []byte{'V', '4', 'B', 'C', 0, 1, 0, 0, 2, 0, 0, 0, 0x79, 0x51}
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got.Words) != 0 || !bytes.Equal(got.Main, []byte{0x79, 0x51}) {
		t.Fatalf("got=%+v", got)
	}
}

func TestDetect(t *testing.T) {
	raw, _ := Encode(Container{})
	if len(raw) != HeaderLen || !Detect(raw) {
		t.Fatalf("empty container len=%d detected=%v", len(raw), Detect(raw))
	}
	if Detect(raw[:HeaderLen-1]) {
		t.Fatalf("short payload must be treated as raw code")
	}
	if Detect(bytes.Repeat([]byte{0x01}, 32)) {
		t.Fatalf("raw bytecode detected as container")
	}
}

func TestParseErrors(t *testing.T) {
	good, _ := Encode(sample())

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 1

	tooMany := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(tooMany[12:16], 256)

	hugeMain := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(hugeMain[8:12], 0xFFFFFFFF)

	emptyName, _ := Encode(Container{Words: []Word{{Name: "X"}}})
	emptyName[HeaderLen] = 0

	cases := []struct {
		name string
		raw  []byte
		want error
	}{
		{name: "short header", raw: good[:10], want: ErrTruncated},
		{name: "bad magic", raw: append([]byte("V4BX"), good[4:]...), want: ErrBadMagic},
		{name: "major version", raw: badVersion, want: ErrUnsupportedVersion},
		{name: "too many words", raw: tooMany, want: ErrTooManyWords},
		{name: "main overruns", raw: hugeMain, want: ErrTruncated},
		{name: "entry truncated", raw: good[:len(good)-3], want: ErrTruncated},
		{name: "missing entry", raw: good[:HeaderLen+4+5], want: ErrTruncated},
		{name: "empty name", raw: emptyName, want: ErrInvalidName},
	}
	for _, tc := range cases {
		if _, err := Parse(tc.raw); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestEncodeRejects(t *testing.T) {
	if _, err := Encode(Container{Words: []Word{{Name: ""}}}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	words := make([]Word, MaxWords+1)
	for i := range words {
		words[i] = Word{Name: "w"}
	}
	if _, err := Encode(Container{Words: words}); !errors.Is(err, ErrTooManyWords) {
		t.Fatalf("expected ErrTooManyWords, got %v", err)
	}
	if _, err := Encode(Container{Minor: 1, Words: []Word{{Name: "w"}}}); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}
