package azip

import (
	"bytes"
	"reflect"
	"testing"
)

func TestLocalFileHeaderRoundTrip(t *testing.T) {
	in := &localFileHeader{
		ReaderVersion:    zipVersion20,
		Flags:            flagUTF8,
		Method:           uint16(Deflate),
		ModTime:          0x1234,
		ModDate:          0x5678,
		CRC32:            0xdeadbeef,
		CompressedSize:   42,
		UncompressedSize: 100,
		Name:             "hello/world.txt",
		Extra:            []byte{1, 2, 3, 4},
	}
	var buf bytes.Buffer
	if _, err := writeLocalFileHeader(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := readLocalFileHeader(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *out, *in)
	}
}

func TestCentralDirHeaderRoundTrip(t *testing.T) {
	in := &centralDirHeader{
		CreatorVersion:    creatorUnix << 8,
		ReaderVersion:     zipVersion20,
		Flags:             0,
		Method:            uint16(Store),
		ModTime:           1,
		ModDate:           2,
		CRC32:             0x01020304,
		CompressedSize:    5,
		UncompressedSize:  5,
		InternalAttrs:     0,
		ExternalAttrs:     0o644 << 16,
		LocalHeaderOffset: 1000,
		Name:              "a",
		Extra:             nil,
		Comment:           "a comment",
	}
	var buf bytes.Buffer
	if _, err := writeCentralDirHeader(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := readCentralDirHeader(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *out, *in)
	}
}

func TestFindEOCDNoComment(t *testing.T) {
	var cdBuf bytes.Buffer
	writeCentralDirHeader(&cdBuf, &centralDirHeader{Method: uint16(Store), Name: "a"})
	cdOffset := int64(17) // pretend there's a local header + payload before it
	prefix := make([]byte, cdOffset)

	var full bytes.Buffer
	full.Write(prefix)
	full.Write(cdBuf.Bytes())
	writeEOCD(&full, &eocdRecord{TotalEntries: 1, CDSize: uint32(cdBuf.Len()), CDOffset: uint32(cdOffset)})

	data := full.Bytes()
	ra := bytes.NewReader(data)
	eocdOffset, raw, locatorOffset, err := findEOCD(ra, int64(len(data)))
	if err != nil {
		t.Fatalf("findEOCD: %v", err)
	}
	if locatorOffset != -1 {
		t.Errorf("expected no zip64 locator, got offset %d", locatorOffset)
	}
	if eocdOffset != int64(cdOffset)+int64(cdBuf.Len()) {
		t.Errorf("eocdOffset = %d, want %d", eocdOffset, int64(cdOffset)+int64(cdBuf.Len()))
	}
	if len(raw) != eocdLen {
		t.Errorf("raw eocd record length = %d, want %d", len(raw), eocdLen)
	}
}

func TestFindEOCDNotFound(t *testing.T) {
	data := []byte("not a zip file at all")
	_, _, _, err := findEOCD(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		t.Fatal("expected error for missing EOCD")
	}
}

func TestDataDescriptorRoundTrip(t *testing.T) {
	for _, zip64 := range []bool{false, true} {
		d := &dataDescriptor{CRC32: 0xaabbccdd, CompressedSize: 123, UncompressedSize: 456}
		var buf bytes.Buffer
		if err := writeDataDescriptor(&buf, d, zip64); err != nil {
			t.Fatalf("write: %v", err)
		}
		peek := make([]byte, 4)
		copy(peek, buf.Bytes())
		out, err := readDataDescriptor(peek, &buf, zip64)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if *out != *d {
			t.Errorf("zip64=%v round trip mismatch: got %+v want %+v", zip64, *out, *d)
		}
	}
}
