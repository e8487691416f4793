package azip

import "encoding/binary"

// Recognized extra-field tags, per spec.md §4.2.
const (
	tagZip64        uint16 = 0x0001
	tagUnixExtTime  uint16 = 0x5455 // "UT": extended timestamp
	tagInfoZipUTF8  uint16 = 0x7075 // "up": Info-ZIP Unicode Path
	tagNTFS         uint16 = 0x000a
	tagInfoZipUnix2 uint16 = 0x7855 // "ux": Info-ZIP UNIX (new)
	tagInfoZipUnix1 uint16 = 0x5855 // "UX": Info-ZIP UNIX (old)
)

// extraField is one (tag, payload) record from a header's extra-field
// stream, per spec.md §4.2.
type extraField struct {
	Tag     uint16
	Payload []byte
}

// parseExtraFields iterates a length-prefixed stream of (tag, length,
// payload) triples. A record whose declared length exceeds the remaining
// buffer fails MalformedExtraField, per spec.md §4.2.
func parseExtraFields(buf []byte) ([]extraField, error) {
	var fields []extraField
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, wrapErr(KindMalformedExtraField, "truncated extra field header", nil)
		}
		tag := binary.LittleEndian.Uint16(buf)
		size := binary.LittleEndian.Uint16(buf[2:])
		buf = buf[4:]
		if int(size) > len(buf) {
			return nil, wrapErr(KindMalformedExtraField, "extra field payload overruns buffer", nil)
		}
		fields = append(fields, extraField{Tag: tag, Payload: buf[:size:size]})
		buf = buf[size:]
	}
	return fields, nil
}

// zip64Extra carries the 64-bit versions of whichever CD/local-header
// slots held a 0xFFFFFFFF (or 0xFFFF disk number) sentinel. The payload
// order follows the order of sentinels in the parent record; a nil pointer
// here means "no sentinel for this slot", per spec.md §4.2.
type zip64Extra struct {
	UncompressedSize *uint64
	CompressedSize   *uint64
	LocalHeaderOffset *uint64
	DiskNumberStart   *uint32
}

// parseZip64Extra decodes a 0x0001 payload. want tells it, in order, which
// slots were sentinel in the parent record, since the wire format carries
// no tags of its own inside the zip64 payload.
func parseZip64Extra(payload []byte, wantUncompressed, wantCompressed, wantOffset, wantDisk bool) (zip64Extra, error) {
	var z zip64Extra
	read8 := func() (uint64, error) {
		if len(payload) < 8 {
			return 0, wrapErr(KindMalformedExtraField, "truncated zip64 extra field", nil)
		}
		v := binary.LittleEndian.Uint64(payload)
		payload = payload[8:]
		return v, nil
	}
	if wantUncompressed {
		v, err := read8()
		if err != nil {
			return z, err
		}
		z.UncompressedSize = &v
	}
	if wantCompressed {
		v, err := read8()
		if err != nil {
			return z, err
		}
		z.CompressedSize = &v
	}
	if wantOffset {
		v, err := read8()
		if err != nil {
			return z, err
		}
		z.LocalHeaderOffset = &v
	}
	if wantDisk {
		if len(payload) < 4 {
			return z, wrapErr(KindMalformedExtraField, "truncated zip64 extra field disk number", nil)
		}
		v := binary.LittleEndian.Uint32(payload)
		z.DiskNumberStart = &v
	}
	return z, nil
}

// buildZip64Extra serializes the present fields (in the canonical
// uncompressed/compressed/offset/disk order, per spec.md §4.2) into a
// tag 0x0001 extra-field record.
func buildZip64Extra(uncompressed, compressed, offset *uint64, disk *uint32) []byte {
	size := 0
	if uncompressed != nil {
		size += 8
	}
	if compressed != nil {
		size += 8
	}
	if offset != nil {
		size += 8
	}
	if disk != nil {
		size += 4
	}
	buf := make([]byte, 4+size)
	b := writeBuf(buf)
	b.uint16(tagZip64)
	b.uint16(uint16(size))
	if uncompressed != nil {
		b.uint64(*uncompressed)
	}
	if compressed != nil {
		b.uint64(*compressed)
	}
	if offset != nil {
		b.uint64(*offset)
	}
	if disk != nil {
		b.uint32(*disk)
	}
	return buf
}

// unixExtTime is the decoded 0x5455 extended-timestamp extra field.
type unixExtTime struct {
	HasMtime, HasAtime, HasCtime bool
	Mtime, Atime, Ctime         int64
}

func parseUnixExtTime(payload []byte) (unixExtTime, bool) {
	if len(payload) < 1 {
		return unixExtTime{}, false
	}
	flags := payload[0]
	payload = payload[1:]
	var t unixExtTime
	read := func() (int64, bool) {
		if len(payload) < 4 {
			return 0, false
		}
		v := int64(int32(binary.LittleEndian.Uint32(payload)))
		payload = payload[4:]
		return v, true
	}
	if flags&1 != 0 {
		if v, ok := read(); ok {
			t.Mtime, t.HasMtime = v, true
		}
	}
	if flags&2 != 0 {
		if v, ok := read(); ok {
			t.Atime, t.HasAtime = v, true
		}
	}
	if flags&4 != 0 {
		if v, ok := read(); ok {
			t.Ctime, t.HasCtime = v, true
		}
	}
	return t, true
}

// buildUnixExtTime serializes a mtime-only 0x5455 record, the way
// Info-ZIP producers (and the teacher's prepareEntry) conventionally do.
// The writers in this package do not call it; headers they write carry
// only the MS-DOS time plus any caller-supplied extra bytes.
func buildUnixExtTime(mtime int64) []byte {
	buf := make([]byte, 4+5)
	b := writeBuf(buf)
	b.uint16(tagUnixExtTime)
	b.uint16(5)
	b.uint8(1) // flags: mtime only
	b.uint32(uint32(mtime))
	return buf
}

// infoZipUnicodePath is the decoded 0x7075 extra field.
type infoZipUnicodePath struct {
	CRC32 uint32
	Name  string
}

func parseInfoZipUnicodePath(payload []byte) (infoZipUnicodePath, bool) {
	if len(payload) < 5 || payload[0] != 1 {
		return infoZipUnicodePath{}, false
	}
	crc := binary.LittleEndian.Uint32(payload[1:5])
	return infoZipUnicodePath{CRC32: crc, Name: string(payload[5:])}, true
}

// ntfsTimes is the decoded 0x000a extra field's nested tag-1 substructure
// (three Windows FILETIME values), per spec.md §4.2.
type ntfsTimes struct {
	Mtime, Atime, Ctime uint64
}

func parseNTFSExtra(payload []byte) (ntfsTimes, bool) {
	if len(payload) < 4 {
		return ntfsTimes{}, false
	}
	sub, err := parseExtraFields(payload[4:])
	if err != nil {
		return ntfsTimes{}, false
	}
	for _, f := range sub {
		if f.Tag == 1 && len(f.Payload) >= 24 {
			return ntfsTimes{
				Mtime: binary.LittleEndian.Uint64(f.Payload[0:8]),
				Atime: binary.LittleEndian.Uint64(f.Payload[8:16]),
				Ctime: binary.LittleEndian.Uint64(f.Payload[16:24]),
			}, true
		}
	}
	return ntfsTimes{}, false
}

const ntfsTicksPerSecond = 1e7

func ntfsTimeToUnix(ticks uint64) int64 {
	const epochDiffSeconds = 11644473600 // 1601-01-01 to 1970-01-01
	return int64(ticks/ntfsTicksPerSecond) - epochDiffSeconds
}

// parseInfoZipUnixUIDGID decodes a UID/GID payload in the version-1
// layout (version byte 1, uid size, uid, gid size, gid). The caller
// applies it to both 0x7855 and 0x5855 payloads. The old-style 0x5855
// layout (atime, mtime, then uid and gid) is not decoded: such a payload
// yields ok == false unless its first byte happens to be 1, and its
// timestamps are not read anywhere.
func parseInfoZipUnixUIDGID(payload []byte) (uid, gid uint32, ok bool) {
	// New-style 0x7855: version(1) + uidSize(1) + uid + gidSize(1) + gid.
	if len(payload) >= 2 {
		version := payload[0]
		if version == 1 && len(payload) >= 2 {
			p := payload[1:]
			uidSize := int(p[0])
			p = p[1:]
			if len(p) >= uidSize+1 {
				uid = readUintN(p[:uidSize])
				p = p[uidSize:]
				gidSize := int(p[0])
				p = p[1:]
				if len(p) >= gidSize {
					gid = readUintN(p[:gidSize])
					return uid, gid, true
				}
			}
		}
	}
	return 0, 0, false
}

func readUintN(b []byte) uint32 {
	var v uint32
	for i, c := range b {
		v |= uint32(c) << (8 * uint(i))
	}
	return v
}
