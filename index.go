package azip

import (
	"io"
)

// Index is the parsed result of an archive's central directory, per
// spec.md §4.6: an ordered list of entries with their local-header
// offsets, plus the CD's own location for diagnostics.
type Index struct {
	Entries      []*Entry
	CDOffset     int64
	CDSize       int64
	EOCDOffset   int64
	Comment      string
}

// parseIndex implements spec.md §4.6: locate the EOCD, apply ZIP64
// overrides, seek to the CD offset, and parse exactly TotalEntries
// consecutive CD headers.
func parseIndex(ra io.ReaderAt, size int64) (*Index, error) {
	eocdOffset, raw, locatorOffset, err := findEOCD(ra, size)
	if err != nil {
		return nil, err
	}
	b := readBuf(raw)
	b.skip(4) // signature
	b.skip(2) // disk number
	b.skip(2) // disk with start of cd
	b.skip(2) // entries this disk
	totalEntries := uint64(b.uint16())
	cdSize := uint64(b.uint32())
	cdOffset := uint64(b.uint32())
	commentLen := b.uint16()
	comment := ""
	if int(commentLen) <= len(b) {
		comment = string(b.take(int(commentLen)))
	}

	if locatorOffset >= 0 {
		locator, err := readZip64EOCDLocator(ra, locatorOffset)
		if err != nil {
			return nil, err
		}
		z64, err := readZip64EOCD(ra, int64(locator.EOCDOffset))
		if err != nil {
			return nil, err
		}
		totalEntries = z64.TotalEntries
		cdSize = z64.CDSize
		cdOffset = z64.CDOffset
	}

	sr := io.NewSectionReader(ra, int64(cdOffset), int64(cdSize))
	entries := make([]*Entry, 0, totalEntries)
	for i := uint64(0); i < totalEntries; i++ {
		h, err := readCentralDirHeader(sr)
		if err != nil {
			return nil, err
		}
		entries = append(entries, centralDirHeaderToEntry(h))
	}

	if uint64(len(entries)) != totalEntries {
		return nil, wrapErr(KindCorruptIndex, "parsed entry count does not match eocd total", nil)
	}

	return &Index{
		Entries:    entries,
		CDOffset:   int64(cdOffset),
		CDSize:     int64(cdSize),
		EOCDOffset: eocdOffset,
		Comment:    comment,
	}, nil
}

// centralDirHeaderToEntry converts an on-disk CD record into the
// in-memory Entry model, applying extra-field overrides (ZIP64 sizes,
// UNIX/NTFS timestamps, Info-ZIP Unicode path, UID/GID) per spec.md §4.2.
func centralDirHeaderToEntry(h *centralDirHeader) *Entry {
	e := &Entry{
		Name:              h.Name,
		Comment:           h.Comment,
		Method:            CompressionMethod(h.Method),
		CRC32:             h.CRC32,
		CompressedSize:    uint64(h.CompressedSize),
		UncompressedSize:  uint64(h.UncompressedSize),
		Flags:             h.Flags,
		CreatorVersion:    h.CreatorVersion,
		ReaderVersion:     h.ReaderVersion,
		InternalAttrs:     uint32(h.InternalAttrs),
		ExternalAttrs:     h.ExternalAttrs,
		LocalHeaderOffset: uint64(h.LocalHeaderOffset),
		Modified:          msDosTimeToTime(h.ModDate, h.ModTime),
		NonUTF8:           h.Flags&flagUTF8 == 0,
		rawName:           h.Name,
	}

	fields, err := parseExtraFields(h.Extra)
	if err != nil {
		// Extra-field corruption on an otherwise well-formed CD entry
		// doesn't invalidate the entry's core metadata; keep going with
		// whatever the fixed-width header already gave us, and preserve
		// the raw bytes for round-tripping.
		e.Extra = h.Extra
		return e
	}

	wantU := h.UncompressedSize == uint32max
	wantC := h.CompressedSize == uint32max
	wantO := h.LocalHeaderOffset == uint32max
	var unknown []extraField
	for _, f := range fields {
		switch f.Tag {
		case tagZip64:
			if !wantU && !wantC && !wantO {
				unknown = append(unknown, f)
				continue
			}
			z, err := parseZip64Extra(f.Payload, wantU, wantC, wantO, false)
			if err != nil {
				continue
			}
			if z.UncompressedSize != nil {
				e.UncompressedSize = *z.UncompressedSize
			}
			if z.CompressedSize != nil {
				e.CompressedSize = *z.CompressedSize
			}
			if z.LocalHeaderOffset != nil {
				e.LocalHeaderOffset = *z.LocalHeaderOffset
			}
		case tagUnixExtTime:
			if t, ok := parseUnixExtTime(f.Payload); ok {
				if t.HasMtime {
					e.Modified = unixTimeToTime(t.Mtime)
				}
				if t.HasAtime {
					e.AccessTime = unixTimeToTime(t.Atime)
				}
				if t.HasCtime {
					e.CreateTime = unixTimeToTime(t.Ctime)
				}
			}
		case tagInfoZipUTF8:
			if up, ok := parseInfoZipUnicodePath(f.Payload); ok {
				if crc32Of(h.Name) == up.CRC32 {
					e.Name = up.Name
				}
			} else {
				unknown = append(unknown, f)
			}
		case tagNTFS:
			if nt, ok := parseNTFSExtra(f.Payload); ok {
				e.Modified = unixTimeToTime(ntfsTimeToUnix(nt.Mtime))
				e.AccessTime = unixTimeToTime(ntfsTimeToUnix(nt.Atime))
				e.CreateTime = unixTimeToTime(ntfsTimeToUnix(nt.Ctime))
			}
		case tagInfoZipUnix2, tagInfoZipUnix1:
			if uid, gid, ok := parseInfoZipUnixUIDGID(f.Payload); ok {
				e.UnixUID, e.UnixGID = uid, gid
			}
		default:
			unknown = append(unknown, f)
		}
	}
	e.Extra = rebuildExtra(unknown)
	return e
}

func rebuildExtra(fields []extraField) []byte {
	if len(fields) == 0 {
		return nil
	}
	var out []byte
	for _, f := range fields {
		hdr := make([]byte, 4)
		b := writeBuf(hdr)
		b.uint16(f.Tag)
		b.uint16(uint16(len(f.Payload)))
		out = append(out, hdr...)
		out = append(out, f.Payload...)
	}
	return out
}
