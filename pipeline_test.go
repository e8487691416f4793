package azip

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestEntryWriteReadRoundTrip(t *testing.T) {
	methods := []CompressionMethod{Store, Deflate, Zstd, Bzip2}
	data := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 200)

	for _, m := range methods {
		t.Run(m.String(), func(t *testing.T) {
			var compressed bytes.Buffer
			ew, err := newEntryWriter(&compressed, m, 0)
			if err != nil {
				t.Fatalf("newEntryWriter: %v", err)
			}
			if _, err := io.WriteString(ew, data); err != nil {
				t.Fatalf("write: %v", err)
			}
			result, err := ew.Close()
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			if result.UncompressedSize != uint64(len(data)) {
				t.Errorf("uncompressed size = %d, want %d", result.UncompressedSize, len(data))
			}

			er, err := newEntryReader(bytes.NewReader(compressed.Bytes()), m, result.CompressedSize, true, result.CRC32)
			if err != nil {
				t.Fatalf("newEntryReader: %v", err)
			}
			got, err := ReadToEndChecked(er)
			if err != nil {
				t.Fatalf("ReadToEndChecked: %v", err)
			}
			if string(got) != data {
				t.Errorf("round trip data mismatch for method %v", m)
			}
			if err := er.Close(); err != nil {
				t.Fatalf("entry reader close: %v", err)
			}
		})
	}
}

func TestEntryReaderCrcMismatch(t *testing.T) {
	var compressed bytes.Buffer
	ew, err := newEntryWriter(&compressed, Store, 0)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(ew, "hello world")
	result, err := ew.Close()
	if err != nil {
		t.Fatal(err)
	}

	er, err := newEntryReader(bytes.NewReader(compressed.Bytes()), Store, result.CompressedSize, true, result.CRC32^0xff)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReadToEndChecked(er); err == nil {
		t.Fatal("expected crc mismatch error")
	} else if !isKind(err, KindCrcMismatch) {
		t.Errorf("expected KindCrcMismatch, got %v", err)
	}
}

func isKind(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}
