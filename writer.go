package azip

import (
	"io"
)

// ArchiveWriter assembles a new ZIP archive onto an underlying io.Writer,
// per spec.md §4.8: entries are appended one at a time, each either
// written whole (size known upfront) or streamed with a trailing data
// descriptor, and Close() emits the central directory, optional ZIP64
// EOCD + locator, and the classical EOCD.
//
// Grounded on the teacher's writeHeader/writeCentralDirectory pair in
// writer.go, split into three states (spec.md §4.8's "Idle / StreamOpen /
// Closed" state machine) since this module also supports the whole-entry
// strategy the teacher's Archive builder used for precomputed content.
type ArchiveWriter struct {
	w      *countWriter
	dir    []writtenEntry
	state  writerState
	cur    *streamEntry
	closed bool
}

type writerState int

const (
	writerIdle writerState = iota
	writerStreamOpen
	writerClosed
)

// writtenEntry records everything Close needs to write an entry's
// central-directory header once the entry (whole or streamed) has finished.
type writtenEntry struct {
	name              string
	comment           string
	method            CompressionMethod
	crc32             uint32
	compressedSize    uint64
	uncompressedSize  uint64
	flags             uint16
	creatorVersion    uint16
	externalAttrs     uint32
	localHeaderOffset uint64
	modTime, modDate  uint16
	extra             []byte
}

// streamEntry tracks the in-progress streamed write opened by
// StreamEntry, per spec.md §4.8's streaming-with-data-descriptor mode.
type streamEntry struct {
	builder           *EntryBuilder
	localHeaderOffset uint64
	pipeline          *EntryWriter
	forceZip64        bool
}

// NewArchiveWriter returns an ArchiveWriter appending to w starting at the
// current position (offset 0 for a fresh archive).
func NewArchiveWriter(w io.Writer) *ArchiveWriter {
	return &ArchiveWriter{w: &countWriter{w: w}}
}

// Offset reports the number of bytes written to the underlying sink so
// far, i.e. where the next entry's local header would begin.
func (aw *ArchiveWriter) Offset() uint64 { return uint64(aw.w.count) }

// WriteEntry implements spec.md §4.8's whole-entry strategy: content is
// the whole uncompressed payload, which is compressed into memory first,
// so sizes are known before the local header is written and no data
// descriptor is needed.
func (aw *ArchiveWriter) WriteEntry(b *EntryBuilder, content []byte) error {
	if aw.closed {
		return ErrWriterClosed
	}
	if aw.state != writerIdle {
		return ErrEntryAlreadyOpen
	}

	localOffset := aw.Offset()
	var compBuf countingBuffer
	pipe, err := newEntryWriter(&compBuf, b.Method, b.Level)
	if err != nil {
		return err
	}
	if _, err := pipe.Write(content); err != nil {
		return err
	}
	result, err := pipe.Close()
	if err != nil {
		return err
	}

	zd := decideLocalHeaderZip64(result.UncompressedSize, result.CompressedSize, b.ForceZip64, true)
	modDate, modTime := timeToMsDosTime(b.Modified)
	flags := buildFlags(b)

	lh := &localFileHeader{
		ReaderVersion:    pickReaderVersion(zd.zip64),
		Flags:            flags,
		Method:           uint16(b.Method),
		ModTime:          modTime,
		ModDate:          modDate,
		CRC32:            result.CRC32,
		CompressedSize:   zd.compressedSize,
		UncompressedSize: zd.uncompressedSize,
		Name:             b.Name,
		Extra:            append(append([]byte{}, zd.extra...), b.Extra...),
	}
	if _, err := writeLocalFileHeader(aw.w, lh); err != nil {
		return err
	}
	if _, err := aw.w.Write(compBuf.Bytes()); err != nil {
		return ioErr("write entry payload", err)
	}

	aw.dir = append(aw.dir, writtenEntry{
		name:              b.Name,
		comment:           b.Comment,
		method:            b.Method,
		crc32:             result.CRC32,
		compressedSize:    result.CompressedSize,
		uncompressedSize:  result.UncompressedSize,
		flags:             flags,
		creatorVersion:    b.CreatorVersion&0xff | creatorUnix<<8,
		externalAttrs:     b.ExternalAttrs,
		localHeaderOffset: localOffset,
		modTime:           modTime,
		modDate:           modDate,
		extra:             b.Extra,
	})
	return nil
}

// StreamEntry implements spec.md §4.8's streaming-with-data-descriptor
// strategy: the local header is written immediately with zeroed size
// fields and the data-descriptor flag set, content is forwarded through
// Write as it becomes available, and CloseEntry finalizes CRC/sizes and
// emits the trailing data descriptor.
func (aw *ArchiveWriter) StreamEntry(b *EntryBuilder) error {
	if aw.closed {
		return ErrWriterClosed
	}
	if aw.state != writerIdle {
		return ErrEntryAlreadyOpen
	}

	localOffset := aw.Offset()
	modDate, modTime := timeToMsDosTime(b.Modified)
	flags := buildFlags(b) | flagDataDescriptor
	zd := decideLocalHeaderZip64(0, 0, b.ForceZip64, false)
	extra := b.Extra
	if zd.zip64 {
		// Placeholder zip64 record (zero sizes): it tells a forward-stream
		// reader that the trailing data descriptor uses 64-bit sizes.
		var zero uint64
		extra = append(buildZip64Extra(&zero, &zero, nil, nil), b.Extra...)
	}

	lh := &localFileHeader{
		ReaderVersion: pickReaderVersion(zd.zip64),
		Flags:         flags,
		Method:        uint16(b.Method),
		ModTime:       modTime,
		ModDate:       modDate,
		Name:          b.Name,
		Extra:         extra,
	}
	if _, err := writeLocalFileHeader(aw.w, lh); err != nil {
		return err
	}

	pipe, err := newEntryWriter(aw.w, b.Method, b.Level)
	if err != nil {
		return err
	}
	aw.cur = &streamEntry{builder: b, localHeaderOffset: localOffset, pipeline: pipe, forceZip64: b.ForceZip64}
	aw.state = writerStreamOpen
	return nil
}

// Write forwards to the currently open streamed entry's write pipeline.
// It is an error to call Write without an open StreamEntry.
func (aw *ArchiveWriter) Write(p []byte) (int, error) {
	if aw.state != writerStreamOpen {
		return 0, newErr(KindWriterClosed, "no entry stream is open")
	}
	return aw.cur.pipeline.Write(p)
}

// CloseEntry finalizes the currently open streamed entry, appending its
// data descriptor, per spec.md §4.8.
func (aw *ArchiveWriter) CloseEntry() error {
	if aw.state != writerStreamOpen {
		return newErr(KindWriterClosed, "no entry stream is open")
	}
	cur := aw.cur
	result, err := cur.pipeline.Close()
	if err != nil {
		return err
	}

	zip64 := cur.forceZip64 || needsZip64(result.UncompressedSize, result.CompressedSize, 0)
	dd := &dataDescriptor{CRC32: result.CRC32, CompressedSize: result.CompressedSize, UncompressedSize: result.UncompressedSize}
	if err := writeDataDescriptor(aw.w, dd, zip64); err != nil {
		return err
	}

	b := cur.builder
	modDate, modTime := timeToMsDosTime(b.Modified)
	aw.dir = append(aw.dir, writtenEntry{
		name:              b.Name,
		comment:           b.Comment,
		method:            b.Method,
		crc32:             result.CRC32,
		compressedSize:    result.CompressedSize,
		uncompressedSize:  result.UncompressedSize,
		flags:             buildFlags(b) | flagDataDescriptor,
		creatorVersion:    b.CreatorVersion&0xff | creatorUnix<<8,
		externalAttrs:     b.ExternalAttrs,
		localHeaderOffset: cur.localHeaderOffset,
		modTime:           modTime,
		modDate:           modDate,
		extra:             b.Extra,
	})
	aw.cur = nil
	aw.state = writerIdle
	return nil
}

// Close emits the central directory, optional ZIP64 EOCD + locator, and
// the classical EOCD, per spec.md §4.8/§4.9. It is an error to Close
// while a streamed entry is still open.
func (aw *ArchiveWriter) Close(comment string) error {
	if aw.state == writerStreamOpen {
		return ErrEntryAlreadyOpen
	}
	if aw.closed {
		return nil
	}
	aw.closed = true
	aw.state = writerClosed

	cdStart := aw.Offset()
	for _, e := range aw.dir {
		zd := decideCentralDirZip64(e.uncompressedSize, e.compressedSize, e.localHeaderOffset)
		h := &centralDirHeader{
			CreatorVersion:    e.creatorVersion,
			ReaderVersion:     zd.readerVersion,
			Flags:             e.flags,
			Method:            uint16(e.method),
			ModTime:           e.modTime,
			ModDate:           e.modDate,
			CRC32:             e.crc32,
			CompressedSize:    zd.compressedSize,
			UncompressedSize:  zd.uncompressedSize,
			ExternalAttrs:     e.externalAttrs,
			LocalHeaderOffset: zd.localHeaderOffset,
			Name:              e.name,
			Extra:             append(append([]byte{}, zd.extra...), e.extra...),
			Comment:           e.comment,
		}
		if _, err := writeCentralDirHeader(aw.w, h); err != nil {
			return err
		}
	}
	cdSize := aw.Offset() - cdStart

	needed, records, size, offset := eocdZip64Decision(uint64(len(aw.dir)), cdSize, cdStart)
	if needed {
		eocdOffset := aw.Offset()
		if err := writeZip64EOCD(aw.w, &zip64EOCDRecord{
			TotalEntries: uint64(len(aw.dir)),
			CDSize:       cdSize,
			CDOffset:     cdStart,
		}); err != nil {
			return err
		}
		if err := writeZip64EOCDLocator(aw.w, &zip64EOCDLocator{EOCDOffset: eocdOffset}); err != nil {
			return err
		}
	}
	return writeEOCD(aw.w, &eocdRecord{
		TotalEntries: uint16(records),
		CDSize:       uint32(size),
		CDOffset:     uint32(offset),
		Comment:      comment,
	})
}

func buildFlags(b *EntryBuilder) uint16 {
	var flags uint16
	if !b.NonUTF8 {
		if valid, require := detectUTF8(b.Name); valid && require {
			flags |= flagUTF8
		}
	}
	return flags
}

func pickReaderVersion(zip64 bool) uint16 {
	if zip64 {
		return zipVersion45
	}
	return zipVersion20
}

// countingBuffer is an in-memory sink used by WriteEntry to materialize a
// whole entry's compressed bytes before its final size is known, mirroring
// the teacher's bufferView helper in archive.go (generalized here from a
// one-shot content callback to an io.Writer sink used directly by
// EntryWriter).
type countingBuffer struct {
	buf []byte
}

func (b *countingBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *countingBuffer) Bytes() []byte { return b.buf }
