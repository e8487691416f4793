package azip

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func buildTestArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf)

	b1 := NewEntryBuilder("readme.txt", Store)
	b1.WithModified(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
	if err := aw.WriteEntry(b1, []byte("hello, zip world")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	b2 := NewEntryBuilder("data.bin", Deflate)
	b2.WithModified(time.Date(2023, 6, 2, 9, 30, 0, 0, time.UTC))
	payload := bytes.Repeat([]byte("streamed payload content\n"), 500)
	if err := aw.StreamEntry(b2); err != nil {
		t.Fatalf("StreamEntry: %v", err)
	}
	if _, err := aw.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := aw.CloseEntry(); err != nil {
		t.Fatalf("CloseEntry: %v", err)
	}

	if err := aw.Close("a test archive"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestArchiveWriterThenSeekReader(t *testing.T) {
	data := buildTestArchive(t)

	ar, err := OpenArchiveReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenArchiveReader: %v", err)
	}
	entries := ar.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if ar.Comment() != "a test archive" {
		t.Errorf("comment = %q", ar.Comment())
	}

	want := map[string]string{
		"readme.txt": "hello, zip world",
	}
	for i, e := range entries {
		er, err := ar.OpenEntry(context.Background(), i)
		if err != nil {
			t.Fatalf("OpenEntry(%d): %v", i, err)
		}
		got, err := ReadToEndChecked(er)
		if err != nil {
			t.Fatalf("ReadToEndChecked(%d): %v", i, err)
		}
		if w, ok := want[e.Name]; ok && string(got) != w {
			t.Errorf("entry %q = %q, want %q", e.Name, got, w)
		}
		if e.Name == "data.bin" && len(got) == 0 {
			t.Error("expected streamed entry to have content")
		}
		er.Close()
	}
}

func TestArchiveWriterThenStreamReader(t *testing.T) {
	data := buildTestArchive(t)
	sr := NewStreamReader(bytes.NewReader(data))

	var names []string
	for {
		e, er, err := sr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		names = append(names, e.Name)
		got, err := ReadToEndChecked(er)
		if err != nil {
			t.Fatalf("ReadToEndChecked(%s): %v", e.Name, err)
		}

		if e.Name == "data.bin" {
			// data.bin was written via StreamEntry/Write/CloseEntry, so its
			// local header carries flagDataDescriptor (bit 3) and a
			// placeholder zero CRC/sizes; the true values only become
			// known once the trailing data descriptor is consumed.
			if e.Flags&flagDataDescriptor == 0 {
				t.Fatalf("data.bin local header flags = %#x, want flagDataDescriptor set", e.Flags)
			}
			wantCRC := crc32Of(string(got))
			if e.CRC32 != wantCRC {
				t.Errorf("recovered CRC32 = %#x, want %#x", e.CRC32, wantCRC)
			}
			if e.UncompressedSize != uint64(len(got)) {
				t.Errorf("recovered UncompressedSize = %d, want %d", e.UncompressedSize, len(got))
			}
			if e.CompressedSize == 0 {
				t.Error("recovered CompressedSize should be nonzero for a Deflate entry")
			}
		}
	}
	if len(names) != 2 || names[0] != "readme.txt" || names[1] != "data.bin" {
		t.Errorf("names = %v, want [readme.txt data.bin]", names)
	}
}

func TestArchiveWriterThenConcurrentReader(t *testing.T) {
	data := buildTestArchive(t)
	cr, err := OpenConcurrentReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenConcurrentReader: %v", err)
	}

	type result struct {
		name string
		data []byte
		err  error
	}
	results := make(chan result, len(cr.Entries()))
	for i := range cr.Entries() {
		i := i
		go func() {
			e := cr.Entries()[i]
			er, err := cr.OpenEntry(context.Background(), i)
			if err != nil {
				results <- result{err: err}
				return
			}
			defer er.Close()
			got, err := ReadToEndChecked(er)
			results <- result{name: e.Name, data: got, err: err}
		}()
	}
	for range cr.Entries() {
		r := <-results
		if r.err != nil {
			t.Errorf("concurrent open/read failed: %v", r.err)
		}
	}
}

func TestArchiveWriterEntryAlreadyOpen(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf)
	if err := aw.StreamEntry(NewEntryBuilder("a", Store)); err != nil {
		t.Fatal(err)
	}
	if err := aw.StreamEntry(NewEntryBuilder("b", Store)); !isKind(err, KindEntryAlreadyOpen) {
		t.Errorf("expected KindEntryAlreadyOpen, got %v", err)
	}
}

func TestArchiveWriterCloseWithOpenEntry(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf)
	if err := aw.StreamEntry(NewEntryBuilder("a", Store)); err != nil {
		t.Fatal(err)
	}
	if err := aw.Close(""); !isKind(err, KindEntryAlreadyOpen) {
		t.Errorf("expected KindEntryAlreadyOpen, got %v", err)
	}
}
