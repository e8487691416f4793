package azip

import (
	"bufio"
	"encoding/binary"
	"io"
)

// StreamReader implements spec.md §4.7's forward-stream strategy: entries
// are discovered one at a time by reading forward through local headers in
// physical order, without ever consulting the central directory. It
// cannot be used to open arbitrary entries by index, and it cannot see an
// entry's trailing comment (that lives only in the central directory).
//
// Grounded on the teacher's own layered reading style (io.go's small,
// single-purpose adapters) and on elliotnunn/BeHierarchic's getEOCD/zip.go
// pattern of reading signatures to decide what kind of record follows.
type StreamReader struct {
	r      *bufio.Reader
	offset int64
	cur    EntryReadCloser
	done   bool
}

// NewStreamReader wraps r for forward, single-pass entry discovery.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReaderSize(r, 32*1024)}
}

// Next reads the next entry's local header and returns a partially
// populated Entry (no comment, no external attrs beyond what the local
// header carries) plus an EntryReader for its payload. It returns io.EOF
// once a central-directory-header signature is seen instead of a local
// one, signaling the end of the entry sequence (spec.md §4.7).
func (sr *StreamReader) Next() (*Entry, EntryReadCloser, error) {
	if sr.done {
		return nil, nil, io.EOF
	}
	if sr.cur != nil {
		if _, err := io.Copy(io.Discard, sr.cur); err != nil {
			return nil, nil, err
		}
		if err := sr.cur.Close(); err != nil {
			return nil, nil, err
		}
		sr.cur = nil
	}

	sig, err := sr.peekSignature()
	if err != nil {
		return nil, nil, err
	}
	if sig != sigLocalFileHeader {
		sr.done = true
		return nil, nil, io.EOF
	}

	lh, err := readLocalFileHeader(sr.r)
	if err != nil {
		return nil, nil, err
	}
	sr.offset += localFileHeaderLen + int64(len(lh.Name)) + int64(len(lh.Extra))

	e := &Entry{
		Name:           lh.Name,
		Method:         CompressionMethod(lh.Method),
		Flags:          lh.Flags,
		ReaderVersion:  lh.ReaderVersion,
		CRC32:          lh.CRC32,
		CompressedSize: uint64(lh.CompressedSize),
		UncompressedSize: uint64(lh.UncompressedSize),
		Modified:       msDosTimeToTime(lh.ModDate, lh.ModTime),
		NonUTF8:        lh.Flags&flagUTF8 == 0,
		rawName:        lh.Name,
	}
	lhZip64 := false
	if fields, err := parseExtraFields(lh.Extra); err == nil {
		for _, f := range fields {
			if f.Tag == tagZip64 {
				lhZip64 = true
				z, err := parseZip64Extra(f.Payload, e.UncompressedSize == uint32max, e.CompressedSize == uint32max, false, false)
				if err == nil {
					if z.UncompressedSize != nil {
						e.UncompressedSize = *z.UncompressedSize
					}
					if z.CompressedSize != nil {
						e.CompressedSize = *z.CompressedSize
					}
				}
			}
		}
	}

	sizeKnown := lh.Flags&flagDataDescriptor == 0
	var payload io.Reader = sr.r
	if sizeKnown {
		payload = io.LimitReader(sr.r, int64(e.CompressedSize))
	}
	er, err := newEntryReader(payload, e.Method, e.CompressedSize, sizeKnown, e.CRC32)
	if err != nil {
		return nil, nil, err
	}
	sr.cur = er

	if !sizeKnown {
		// The caller must read the EntryReader to completion before the
		// trailing data descriptor (and the true CRC/sizes) can be
		// recovered; Next() handles that itself on the following call,
		// draining sr.cur, then parses the descriptor here via a wrapper.
		sr.cur = &streamDescriptorReader{EntryReader: er, sr: sr, e: e, zip64: lhZip64}
	}

	return e, sr.cur, nil
}

// peekSignature reads (without consuming) the next 4-byte record
// signature, the forward-stream strategy's way of telling a local header
// from the start of the central directory, per spec.md §4.7.
func (sr *StreamReader) peekSignature() (uint32, error) {
	b, err := sr.r.Peek(4)
	if err != nil {
		if err == io.EOF {
			sr.done = true
			return 0, io.EOF
		}
		return 0, ioErr("peek record signature", err)
	}
	return binary.LittleEndian.Uint32(b), nil
}

// streamDescriptorReader wraps an EntryReader whose size was not known
// upfront (flagDataDescriptor set): once the wrapped reader signals EOF,
// it reads and applies the trailing data descriptor so the entry's
// CRC32/sizes reflect the authoritative values for the next Next() call
// and for Verify(), per spec.md §4.3's data-descriptor note ("the 4-byte
// signature, if present, disambiguates it from a coincidental match").
type streamDescriptorReader struct {
	*EntryReader
	sr       *StreamReader
	e        *Entry
	consumed bool
	zip64    bool // the local header's extra field held a ZIP64 record
}

func (s *streamDescriptorReader) Read(p []byte) (int, error) {
	n, err := s.EntryReader.Read(p)
	if err == io.EOF && !s.consumed {
		if derr := s.consumeDescriptor(); derr != nil {
			return n, derr
		}
	}
	return n, err
}

func (s *streamDescriptorReader) consumeDescriptor() error {
	s.consumed = true
	peek, err := s.sr.r.Peek(4)
	if err != nil {
		return ioErr("peek data descriptor", err)
	}
	zip64 := s.zip64 || s.e.CompressedSize >= uint32max || s.e.UncompressedSize >= uint32max
	dd, err := readDataDescriptor(peek, s.sr.r, zip64)
	if err != nil {
		return err
	}
	s.e.CRC32 = dd.CRC32
	s.e.CompressedSize = dd.CompressedSize
	s.e.UncompressedSize = dd.UncompressedSize
	// The local header carried a placeholder (zero) CRC for this entry
	// since flagDataDescriptor was set; Verify must check against the
	// authoritative value the descriptor just supplied instead.
	s.EntryReader.crc.expected = dd.CRC32
	return nil
}
