// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package azip

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ServableEntry describes one file of a PrebuiltArchive: the caller must
// already know CRC32, CompressedSize and UncompressedSize before calling
// NewPrebuiltArchive, since the archive is built as a concurrent-seek
// ReaderAt without ever reading the payload data itself (spec.md §4.7's
// concurrent-seek strategy, applied to a whole archive rather than one
// entry). Grounded on the teacher's Template/FileHeader pair in archive.go,
// generalized from the teacher's fixed Store/Deflate pair to any
// CompressionMethod registered in the codec registry.
type ServableEntry struct {
	*EntryBuilder

	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64

	// Content serves the entry's already-compressed payload. Size of the
	// served range must equal CompressedSize. If Content implements
	// ReaderAt, its ReadAtContext method is used instead of ReadAt.
	Content io.ReaderAt
}

// PrebuiltArchiveTemplate describes the content and options of a ZIP
// archive assembled entirely from precomputed headers and payload ranges,
// for serving over HTTP with working range requests. Grounded on the
// teacher's Template.
type PrebuiltArchiveTemplate struct {
	Entries []*ServableEntry
	Comment string

	// CreateTime populates the Last-Modified HTTP header; the maximum
	// Modified time across entries is used if CreateTime is zero.
	CreateTime time.Time
}

// PrebuiltArchive is ZIP file content backed entirely by caller-supplied
// ReaderAt payload ranges, fetched on demand rather than materialized in
// memory — spec.md §4.7's concurrent-seek access mode applied at the whole
// archive level instead of one entry. Grounded on the teacher's Archive.
type PrebuiltArchive struct {
	parts      multiReaderAt
	createTime time.Time
	etag       string
}

// NewPrebuiltArchive builds a PrebuiltArchive from a template. The template
// is consumed and should not be reused afterward: an entry with a nil
// EntryBuilder gets an empty one, NonUTF8 may be cleared when the name or
// comment requires UTF-8, and a directory entry (name ending in "/") is
// set to Store with zero sizes.
func NewPrebuiltArchive(t *PrebuiltArchiveTemplate) (*PrebuiltArchive, error) {
	if len(t.Comment) > uint16max {
		return nil, newErr(KindEntryTooLarge, "archive comment too long")
	}

	ar := new(PrebuiltArchive)
	dir := make([]archiveDirEntry, 0, len(t.Entries))
	etagHash := md5.New()
	var maxTime time.Time

	for _, se := range t.Entries {
		prepareServableEntry(se)
		dir = append(dir, archiveDirEntry{ServableEntry: se, offset: uint64(ar.parts.size)})

		headerBytes, err := buildLocalHeaderBytes(se)
		if err != nil {
			return nil, err
		}
		ar.parts.addSizeReaderAt(bytes.NewReader(headerBytes))
		etagHash.Write(headerBytes)

		if se.Name == "" || !strings.HasSuffix(se.Name, "/") {
			if se.Content != nil {
				ar.parts.add(asReaderAt(se.Content), int64(se.CompressedSize))
			} else if se.CompressedSize != 0 {
				return nil, newErr(KindEntryTooLarge, "servable entry has nonzero size but nil content")
			}
			dd := buildDataDescriptorBytes(se)
			ar.parts.addSizeReaderAt(bytes.NewReader(dd))
			etagHash.Write(dd)
		}
		if se.Modified.After(maxTime) {
			maxTime = se.Modified
		}
	}

	cdOffset := ar.parts.size
	cdBytes, eocdBytes, err := buildCentralDirectoryBytes(cdOffset, dir, t.Comment)
	if err != nil {
		return nil, err
	}
	ar.parts.addSizeReaderAt(bytes.NewReader(cdBytes))
	etagHash.Write(cdBytes)
	ar.parts.addSizeReaderAt(bytes.NewReader(eocdBytes))
	etagHash.Write(eocdBytes)

	ar.createTime = t.CreateTime
	if ar.createTime.IsZero() {
		ar.createTime = maxTime
	}
	ar.etag = fmt.Sprintf("%q", hex.EncodeToString(etagHash.Sum(nil)))

	return ar, nil
}

func prepareServableEntry(se *ServableEntry) {
	if se.EntryBuilder == nil {
		se.EntryBuilder = &EntryBuilder{}
	}
	utf8Valid1, utf8Require1 := detectUTF8(se.Name)
	utf8Valid2, utf8Require2 := detectUTF8(se.Comment)
	if (utf8Require1 || utf8Require2) && utf8Valid1 && utf8Valid2 {
		se.NonUTF8 = false
	}

	if strings.HasSuffix(se.Name, "/") {
		se.Method = Store
		se.CompressedSize = 0
		se.UncompressedSize = 0
	}
}

func entryFlags(se *ServableEntry) uint16 {
	var flags uint16
	if !se.NonUTF8 {
		if valid, require := detectUTF8(se.Name); valid && require {
			flags |= flagUTF8
		}
	}
	if !strings.HasSuffix(se.Name, "/") {
		flags |= flagDataDescriptor
	}
	return flags
}

func buildLocalHeaderBytes(se *ServableEntry) ([]byte, error) {
	modDate, modTime := timeToMsDosTime(se.Modified)
	h := &localFileHeader{
		ReaderVersion: zipVersion20,
		Flags:         entryFlags(se),
		Method:        uint16(se.Method),
		ModTime:       modTime,
		ModDate:       modDate,
		Name:          se.Name,
	}
	var buf bytes.Buffer
	if _, err := writeLocalFileHeader(&buf, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildDataDescriptorBytes(se *ServableEntry) []byte {
	d := &dataDescriptor{CRC32: se.CRC32, CompressedSize: se.CompressedSize, UncompressedSize: se.UncompressedSize}
	var buf bytes.Buffer
	zip64 := se.CompressedSize >= uint32max || se.UncompressedSize >= uint32max
	writeDataDescriptor(&buf, d, zip64)
	return buf.Bytes()
}

// archiveDirEntry pairs a ServableEntry with its resolved local-header
// offset, for the central-directory writing pass.
type archiveDirEntry struct {
	*ServableEntry
	offset uint64
}

func buildCentralDirectoryBytes(start int64, dir []archiveDirEntry, comment string) (cdBytes, eocdBytes []byte, err error) {
	var cdBuf bytes.Buffer
	for _, de := range dir {
		modDate, modTime := timeToMsDosTime(de.Modified)
		h := &centralDirHeader{
			CreatorVersion:    de.CreatorVersion&0xff | creatorUnix<<8,
			ReaderVersion:     zipVersion20,
			Flags:             entryFlags(de.ServableEntry),
			Method:            uint16(de.Method),
			ModTime:           modTime,
			ModDate:           modDate,
			CRC32:             de.CRC32,
			CompressedSize:    uint32(de.CompressedSize),
			UncompressedSize:  uint32(de.UncompressedSize),
			ExternalAttrs:     de.ExternalAttrs,
			Name:              de.Name,
			Comment:           de.Comment,
			LocalHeaderOffset: uint32(de.offset),
		}
		if de.CompressedSize >= uint32max || de.UncompressedSize >= uint32max || de.offset >= uint32max {
			h.CompressedSize = uint32max
			h.UncompressedSize = uint32max
			h.LocalHeaderOffset = uint32max
			h.Extra = buildZip64Extra(&de.UncompressedSize, &de.CompressedSize, &de.offset, nil)
			h.ReaderVersion = zipVersion45
		}
		if _, err := writeCentralDirHeader(&cdBuf, h); err != nil {
			return nil, nil, err
		}
	}

	size := uint64(cdBuf.Len())
	offset := uint64(start)
	records := uint64(len(dir))

	var eocdBuf bytes.Buffer
	if records >= uint16max || size >= uint32max || offset >= uint32max {
		if err := writeZip64EOCD(&eocdBuf, &zip64EOCDRecord{
			TotalEntries: records,
			CDSize:       size,
			CDOffset:     offset,
		}); err != nil {
			return nil, nil, err
		}
		if err := writeZip64EOCDLocator(&eocdBuf, &zip64EOCDLocator{EOCDOffset: offset + size}); err != nil {
			return nil, nil, err
		}
		records = uint16max
		size = uint32max
		offset = uint32max
	}
	if err := writeEOCD(&eocdBuf, &eocdRecord{
		TotalEntries: uint16(records),
		CDSize:       uint32(size),
		CDOffset:     uint32(offset),
		Comment:      comment,
	}); err != nil {
		return nil, nil, err
	}
	return cdBuf.Bytes(), eocdBuf.Bytes(), nil
}

// Size returns the size of the archive in bytes.
func (ar *PrebuiltArchive) Size() int64 { return ar.parts.Size() }

// ReadAt provides the data of the archive. Equivalent to ReadAtContext
// with context.Background().
func (ar *PrebuiltArchive) ReadAt(p []byte, off int64) (int, error) {
	return ar.parts.ReadAtContext(context.Background(), p, off)
}

// ReadAtContext implements ReaderAt, observing ctx on every underlying
// entry ReaderAt that supports it.
func (ar *PrebuiltArchive) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	return ar.parts.ReadAtContext(ctx, p, off)
}

// ServeHTTP serves the archive over HTTP, supporting range requests via
// http.ServeContent. Content-Type and Etag headers are set if not already
// present.
func (ar *PrebuiltArchive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, have := w.Header()["Content-Type"]; !have {
		w.Header().Set("Content-Type", "application/zip")
	}
	if _, have := w.Header()["Etag"]; !have {
		w.Header().Set("Etag", ar.etag)
	}
	readseeker := io.NewSectionReader(withContext{ctx: r.Context(), r: &ar.parts}, 0, ar.parts.Size())
	http.ServeContent(w, r, "", ar.createTime, readseeker)
}
