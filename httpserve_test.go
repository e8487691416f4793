package azip

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPrebuiltArchiveServeHTTP(t *testing.T) {
	content := []byte("served over http")
	tmpl := &PrebuiltArchiveTemplate{
		Entries: []*ServableEntry{
			{
				EntryBuilder:     NewEntryBuilder("served.txt", Store),
				CRC32:            crc32Of(string(content)),
				CompressedSize:   uint64(len(content)),
				UncompressedSize: uint64(len(content)),
				Content:          bytes.NewReader(content),
			},
		},
		Comment: "served archive",
	}
	ar, err := NewPrebuiltArchive(tmpl)
	if err != nil {
		t.Fatalf("NewPrebuiltArchive: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/archive.zip", nil)
	rec := httptest.NewRecorder()
	ar.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content-type = %q", ct)
	}

	body, _ := io.ReadAll(rec.Body)
	if int64(len(body)) != ar.Size() {
		t.Errorf("served body length = %d, want %d", len(body), ar.Size())
	}

	idx, err := parseIndex(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("parseIndex on served archive: %v", err)
	}
	if len(idx.Entries) != 1 || idx.Entries[0].Name != "served.txt" {
		t.Fatalf("unexpected entries: %+v", idx.Entries)
	}
	if idx.Comment != "served archive" {
		t.Errorf("comment = %q", idx.Comment)
	}
}
