package azip

// The functions in this file decide, per spec.md §4.9, whether a given
// local header, central-directory header or EOCD must be promoted to
// ZIP64: any of uncompressed size, compressed size, or local-header offset
// reaching the 32-bit sentinel (0xFFFFFFFF) forces promotion. An entry
// whose builder set ForceZip64 gets a promoted local header and a 64-bit
// data descriptor regardless of its sizes; its central-directory header
// is promoted only when its actual sizes or offset need it.

// needsZip64 reports whether uncompressedSize, compressedSize or offset
// individually require ZIP64 promotion of the record they belong to.
func needsZip64(uncompressedSize, compressedSize, offset uint64) bool {
	return uncompressedSize >= uint32max || compressedSize >= uint32max || offset >= uint32max
}

// localHeaderZip64Decision is the result of applying the ZIP64 policy to
// one entry's local header: which 32-bit fields must carry the 0xFFFFFFFF
// sentinel, and the extra-field bytes to emit in their place.
type localHeaderZip64Decision struct {
	zip64            bool
	compressedSize   uint32
	uncompressedSize uint32
	extra            []byte
}

// decideLocalHeaderZip64 applies spec.md §4.9 to a local header. A
// streamed write (sizeKnown == false, i.e. a data descriptor will follow)
// writes zero in the size fields regardless, per spec.md §4.3's local
// header layout for the streaming strategy, and no extra field is
// returned; forceZip64 still sets zip64, which makes StreamEntry emit the
// 4.5 reader version and a zip64 extra placeholder, since the data
// descriptor itself decides 32 vs 64 bit width when it is written after
// the payload.
func decideLocalHeaderZip64(uncompressedSize, compressedSize uint64, forceZip64, sizeKnown bool) localHeaderZip64Decision {
	zip64 := forceZip64 || needsZip64(uncompressedSize, compressedSize, 0)
	d := localHeaderZip64Decision{zip64: zip64}
	if !sizeKnown {
		return d
	}
	if zip64 {
		d.compressedSize = uint32max
		d.uncompressedSize = uint32max
		d.extra = buildZip64Extra(&uncompressedSize, &compressedSize, nil, nil)
	} else {
		d.compressedSize = uint32(compressedSize)
		d.uncompressedSize = uint32(uncompressedSize)
	}
	return d
}

// centralDirZip64Decision is the result of applying the ZIP64 policy to
// one entry's central-directory header.
type centralDirZip64Decision struct {
	compressedSize    uint32
	uncompressedSize  uint32
	localHeaderOffset uint32
	extra             []byte
	readerVersion     uint16
}

// decideCentralDirZip64 applies spec.md §4.9 to a central-directory
// header: any of the three 32-bit slots reaching the sentinel forces all
// three into the extra field together, matching the teacher's
// writeCentralDirectory (and the wider corpus: BeHierarchic's zip.go
// reads them back the same way).
func decideCentralDirZip64(uncompressedSize, compressedSize, offset uint64) centralDirZip64Decision {
	d := centralDirZip64Decision{readerVersion: zipVersion20}
	if !needsZip64(uncompressedSize, compressedSize, offset) {
		d.compressedSize = uint32(compressedSize)
		d.uncompressedSize = uint32(uncompressedSize)
		d.localHeaderOffset = uint32(offset)
		return d
	}
	d.compressedSize = uint32max
	d.uncompressedSize = uint32max
	d.localHeaderOffset = uint32max
	d.extra = buildZip64Extra(&uncompressedSize, &compressedSize, &offset, nil)
	d.readerVersion = zipVersion45
	return d
}

// eocdZip64Decision decides whether the classical EOCD's three summary
// fields (entry count, CD size, CD offset) must be replaced with
// sentinels backed by a ZIP64 EOCD record + locator, per spec.md §4.9.
func eocdZip64Decision(totalEntries, cdSize, cdOffset uint64) (needed bool, records uint64, size uint64, offset uint64) {
	if totalEntries >= uint16max || cdSize >= uint32max || cdOffset >= uint32max {
		return true, uint16max, uint32max, uint32max
	}
	return false, totalEntries, cdSize, cdOffset
}
