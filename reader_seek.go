package azip

import (
	"context"
	"io"
)

// ArchiveReader is the seek-indexed read strategy of spec.md §4.7: after
// an upfront central-directory parse, entries can be opened by index in
// any order via random access into the underlying source.
//
// ArchiveReader holds an exclusive logical borrow of its source while an
// EntryReader obtained from it is alive — opening a second entry reader
// concurrently from the same ArchiveReader is a contract violation per
// spec.md §5; use ConcurrentReader for genuinely concurrent access.
type ArchiveReader struct {
	src   ReaderAt
	size  int64
	index *Index
}

// OpenArchiveReader parses src's central directory (spec.md §4.6) and
// returns a ready-to-use seek-indexed reader (spec.md §4.7).
func OpenArchiveReader(src io.ReaderAt, size int64) (*ArchiveReader, error) {
	idx, err := parseIndex(asPlainReaderAt(asReaderAt(src)), size)
	if err != nil {
		return nil, err
	}
	return &ArchiveReader{src: asReaderAt(src), size: size, index: idx}, nil
}

// asPlainReaderAt is the inverse of asReaderAt, needed because parseIndex
// (and everything below it in the record codec) is written against plain
// io.ReaderAt; the context is bound once here, at the top, for the whole
// index parse, rather than threaded through every record-codec call.
func asPlainReaderAt(r ReaderAt) io.ReaderAt {
	return withContext{ctx: context.Background(), r: r}
}

// Entries returns the parsed entry list, in central-directory order, per
// spec.md §6.
func (ar *ArchiveReader) Entries() []*Entry { return ar.index.Entries }

// Comment returns the archive-level comment recorded in the EOCD.
func (ar *ArchiveReader) Comment() string { return ar.index.Comment }

// OpenEntry implements spec.md §4.7's reader_with_entry(i): it seeks to
// entry i's local-header offset, reparses the local header (verifying its
// filename against the CD, per spec.md §3's invariant), skips the extra
// field, then builds the §4.4 pipeline limited to the entry's compressed
// size.
func (ar *ArchiveReader) OpenEntry(ctx context.Context, i int) (*EntryReader, error) {
	if i < 0 || i >= len(ar.index.Entries) {
		return nil, wrapErr(KindCorruptIndex, "entry index out of range", nil)
	}
	e := ar.index.Entries[i]
	return ar.openEntryAt(ctx, e)
}

func (ar *ArchiveReader) openEntryAt(ctx context.Context, e *Entry) (*EntryReader, error) {
	headerSrc := io.NewSectionReader(withContext{ctx: ctx, r: ar.src}, int64(e.LocalHeaderOffset), ar.size-int64(e.LocalHeaderOffset))
	lh, err := readLocalFileHeader(headerSrc)
	if err != nil {
		return nil, err
	}
	if lh.Name != e.rawName {
		return nil, wrapErr(KindCorruptIndex, "local header filename does not match central directory", nil)
	}
	payloadOffset := int64(e.LocalHeaderOffset) + localFileHeaderLen + int64(len(lh.Name)) + int64(len(lh.Extra))
	payloadSrc := io.NewSectionReader(withContext{ctx: ctx, r: ar.src}, payloadOffset, ar.size-payloadOffset)
	// Sizes come from the central directory, so they are known even for
	// entries written with a data descriptor.
	return newEntryReader(payloadSrc, e.Method, e.CompressedSize, true, e.CRC32)
}
