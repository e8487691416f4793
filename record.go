package azip

import (
	"encoding/binary"
	"io"
)

// Record signatures, per spec.md §6.
const (
	sigLocalFileHeader   uint32 = 0x04034b50
	sigCentralDirHeader  uint32 = 0x02014b50
	sigEOCD              uint32 = 0x06054b50
	sigZip64EOCD         uint32 = 0x06064b50
	sigZip64EOCDLocator  uint32 = 0x07064b50
	sigDataDescriptor    uint32 = 0x08074b50
)

const (
	localFileHeaderLen  = 30 // + name + extra
	centralDirHeaderLen = 46 // + name + extra + comment
	eocdLen             = 22 // + comment
	zip64EOCDLen        = 56 // + extra, excludes signature+size-of-record fields in the variable tail
	zip64EOCDLocatorLen = 20
	dataDescriptorLen32 = 16 // signature + crc32 + 2x u32
	dataDescriptorLen64 = 24 // signature + crc32 + 2x u64

	// eocdSearchWindow bounds the EOCD backward scan: the 22-byte fixed
	// record plus the maximum 65535-byte comment, per spec.md §4.3.
	eocdSearchWindow = 22 + 65535
)

// localFileHeader is the on-disk local header, per spec.md §2/§4.3.
type localFileHeader struct {
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Name             string
	Extra            []byte
}

// writeLocalFileHeader emits the local header, mirroring the teacher's
// writeHeader in writer.go but taking already-resolved 32-bit fields
// (ZIP64 promotion decides those before calling in).
func writeLocalFileHeader(w io.Writer, h *localFileHeader) (int, error) {
	var buf [localFileHeaderLen]byte
	b := writeBuf(buf[:])
	b.uint32(sigLocalFileHeader)
	b.uint16(h.ReaderVersion)
	b.uint16(h.Flags)
	b.uint16(h.Method)
	b.uint16(h.ModTime)
	b.uint16(h.ModDate)
	b.uint32(h.CRC32)
	b.uint32(h.CompressedSize)
	b.uint32(h.UncompressedSize)
	b.uint16(uint16(len(h.Name)))
	b.uint16(uint16(len(h.Extra)))
	n := 0
	if _, err := w.Write(buf[:]); err != nil {
		return n, ioErr("write local header", err)
	}
	n += len(buf)
	if _, err := io.WriteString(w, h.Name); err != nil {
		return n, ioErr("write local header name", err)
	}
	n += len(h.Name)
	if _, err := w.Write(h.Extra); err != nil {
		return n, ioErr("write local header extra", err)
	}
	n += len(h.Extra)
	return n, nil
}

// readLocalFileHeader parses a local header starting at the current
// position of r, verifying the signature per spec.md §4.3.
func readLocalFileHeader(r io.Reader) (*localFileHeader, error) {
	var buf [localFileHeaderLen]byte
	if err := readFull(r, buf[:]); err != nil {
		return nil, err
	}
	b := readBuf(buf[:])
	sig := b.uint32()
	if sig != sigLocalFileHeader {
		return nil, wrapErr(KindInvalidSignature, "expected local file header signature", nil)
	}
	h := &localFileHeader{}
	h.ReaderVersion = b.uint16()
	h.Flags = b.uint16()
	h.Method = b.uint16()
	h.ModTime = b.uint16()
	h.ModDate = b.uint16()
	h.CRC32 = b.uint32()
	h.CompressedSize = b.uint32()
	h.UncompressedSize = b.uint32()
	nameLen := b.uint16()
	extraLen := b.uint16()
	name, err := readLengthPrefixedName(r, nameLen)
	if err != nil {
		return nil, err
	}
	h.Name = name
	if extraLen > 0 {
		extra := make([]byte, extraLen)
		if err := readFull(r, extra); err != nil {
			return nil, err
		}
		h.Extra = extra
	}
	return h, nil
}

// centralDirHeader is the on-disk CD record, per spec.md §2/§4.3.
type centralDirHeader struct {
	CreatorVersion   uint16
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	InternalAttrs    uint16
	ExternalAttrs    uint32
	LocalHeaderOffset uint32
	Name             string
	Extra            []byte
	Comment          string
}

func writeCentralDirHeader(w io.Writer, h *centralDirHeader) (int, error) {
	var buf [centralDirHeaderLen]byte
	b := writeBuf(buf[:])
	b.uint32(sigCentralDirHeader)
	b.uint16(h.CreatorVersion)
	b.uint16(h.ReaderVersion)
	b.uint16(h.Flags)
	b.uint16(h.Method)
	b.uint16(h.ModTime)
	b.uint16(h.ModDate)
	b.uint32(h.CRC32)
	b.uint32(h.CompressedSize)
	b.uint32(h.UncompressedSize)
	b.uint16(uint16(len(h.Name)))
	b.uint16(uint16(len(h.Extra)))
	b.uint16(uint16(len(h.Comment)))
	b.uint16(0) // disk number start, unsupported (spec.md Non-goals: multi-disk spanning)
	b.uint16(h.InternalAttrs)
	b.uint32(h.ExternalAttrs)
	b.uint32(h.LocalHeaderOffset)
	n := 0
	if _, err := w.Write(buf[:]); err != nil {
		return n, ioErr("write central directory header", err)
	}
	n += len(buf)
	if _, err := io.WriteString(w, h.Name); err != nil {
		return n, ioErr("write central directory name", err)
	}
	n += len(h.Name)
	if _, err := w.Write(h.Extra); err != nil {
		return n, ioErr("write central directory extra", err)
	}
	n += len(h.Extra)
	if _, err := io.WriteString(w, h.Comment); err != nil {
		return n, ioErr("write central directory comment", err)
	}
	n += len(h.Comment)
	return n, nil
}

func readCentralDirHeader(r io.Reader) (*centralDirHeader, error) {
	var buf [centralDirHeaderLen]byte
	if err := readFull(r, buf[:]); err != nil {
		return nil, err
	}
	b := readBuf(buf[:])
	sig := b.uint32()
	if sig != sigCentralDirHeader {
		return nil, wrapErr(KindInvalidSignature, "expected central directory header signature", nil)
	}
	h := &centralDirHeader{}
	h.CreatorVersion = b.uint16()
	h.ReaderVersion = b.uint16()
	h.Flags = b.uint16()
	h.Method = b.uint16()
	h.ModTime = b.uint16()
	h.ModDate = b.uint16()
	h.CRC32 = b.uint32()
	h.CompressedSize = b.uint32()
	h.UncompressedSize = b.uint32()
	nameLen := b.uint16()
	extraLen := b.uint16()
	commentLen := b.uint16()
	b.skip(2) // disk number start
	h.InternalAttrs = b.uint16()
	h.ExternalAttrs = b.uint32()
	h.LocalHeaderOffset = b.uint32()

	name, err := readLengthPrefixedName(r, nameLen)
	if err != nil {
		return nil, err
	}
	h.Name = name
	if extraLen > 0 {
		extra := make([]byte, extraLen)
		if err := readFull(r, extra); err != nil {
			return nil, err
		}
		h.Extra = extra
	}
	comment, err := readLengthPrefixedName(r, commentLen)
	if err != nil {
		return nil, err
	}
	h.Comment = comment
	return h, nil
}

// dataDescriptor is the optional trailer following a streamed entry's
// payload, per spec.md §2/§4.7/§4.8. The leading signature is optional on
// the wire (spec.md §9 "Data descriptor ambiguity") but this library
// always emits it, as the teacher does, "for interoperability".
type dataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

func writeDataDescriptor(w io.Writer, d *dataDescriptor, zip64 bool) error {
	if zip64 {
		var buf [dataDescriptorLen64]byte
		b := writeBuf(buf[:])
		b.uint32(sigDataDescriptor)
		b.uint32(d.CRC32)
		b.uint64(d.CompressedSize)
		b.uint64(d.UncompressedSize)
		_, err := w.Write(buf[:])
		if err != nil {
			return ioErr("write data descriptor", err)
		}
		return nil
	}
	var buf [dataDescriptorLen32]byte
	b := writeBuf(buf[:])
	b.uint32(sigDataDescriptor)
	b.uint32(d.CRC32)
	b.uint32(uint32(d.CompressedSize))
	b.uint32(uint32(d.UncompressedSize))
	_, err := w.Write(buf[:])
	if err != nil {
		return ioErr("write data descriptor", err)
	}
	return nil
}

// readDataDescriptor reads a data descriptor, peeking for the optional
// signature per spec.md §4.7 point 4 and §9's documented convention: use
// the 64-bit widths when the local header's extra field contained a ZIP64
// record, else 32-bit.
func readDataDescriptor(peeked4 []byte, r io.Reader, zip64 bool) (*dataDescriptor, error) {
	hasSig := len(peeked4) == 4 && binary.LittleEndian.Uint32(peeked4) == sigDataDescriptor
	width := dataDescriptorLen32
	if zip64 {
		width = dataDescriptorLen64
	}
	buf := make([]byte, width-4)
	if !hasSig {
		// peeked4 only looked ahead, so the bytes it saw (the start of the
		// CRC field) are still unread in r.
		if err := readFull(r, buf); err != nil {
			return nil, err
		}
	} else {
		// peeked4 only looked ahead; discard the signature bytes from r
		// before reading the rest of the descriptor's body.
		var sigBuf [4]byte
		if err := readFull(r, sigBuf[:]); err != nil {
			return nil, err
		}
		if err := readFull(r, buf); err != nil {
			return nil, err
		}
	}
	b := readBuf(buf)
	d := &dataDescriptor{}
	d.CRC32 = b.uint32()
	if zip64 {
		d.CompressedSize = b.uint64()
		d.UncompressedSize = b.uint64()
	} else {
		d.CompressedSize = uint64(b.uint32())
		d.UncompressedSize = uint64(b.uint32())
	}
	return d, nil
}

// eocdRecord is the classical End of Central Directory record, per
// spec.md §2/§3.
type eocdRecord struct {
	TotalEntries uint16
	CDSize       uint32
	CDOffset     uint32
	Comment      string
}

func writeEOCD(w io.Writer, e *eocdRecord) error {
	var buf [eocdLen]byte
	b := writeBuf(buf[:])
	b.uint32(sigEOCD)
	b.uint16(0) // disk number
	b.uint16(0) // disk with start of CD
	b.uint16(e.TotalEntries)
	b.uint16(e.TotalEntries)
	b.uint32(e.CDSize)
	b.uint32(e.CDOffset)
	b.uint16(uint16(len(e.Comment)))
	if _, err := w.Write(buf[:]); err != nil {
		return ioErr("write eocd", err)
	}
	if _, err := io.WriteString(w, e.Comment); err != nil {
		return ioErr("write eocd comment", err)
	}
	return nil
}

// zip64EOCDRecord is the ZIP64 End of Central Directory record.
type zip64EOCDRecord struct {
	TotalEntries uint64
	CDSize       uint64
	CDOffset     uint64
}

func writeZip64EOCD(w io.Writer, e *zip64EOCDRecord) error {
	var buf [zip64EOCDLen]byte
	b := writeBuf(buf[:])
	b.uint32(sigZip64EOCD)
	b.uint64(zip64EOCDLen - 12) // size of remaining record, excludes signature + this field
	b.uint16(zipVersion45)     // version made by
	b.uint16(zipVersion45)     // version needed to extract
	b.uint32(0)                // number of this disk
	b.uint32(0)                // disk with start of CD
	b.uint64(e.TotalEntries)   // entries on this disk
	b.uint64(e.TotalEntries)   // total entries
	b.uint64(e.CDSize)
	b.uint64(e.CDOffset)
	_, err := w.Write(buf[:])
	if err != nil {
		return ioErr("write zip64 eocd", err)
	}
	return nil
}

// zip64EOCDLocator points at the ZIP64 EOCD record.
type zip64EOCDLocator struct {
	EOCDOffset uint64
}

func writeZip64EOCDLocator(w io.Writer, l *zip64EOCDLocator) error {
	var buf [zip64EOCDLocatorLen]byte
	b := writeBuf(buf[:])
	b.uint32(sigZip64EOCDLocator)
	b.uint32(0) // disk with start of zip64 eocd
	b.uint64(l.EOCDOffset)
	b.uint32(1) // total number of disks
	_, err := w.Write(buf[:])
	if err != nil {
		return ioErr("write zip64 eocd locator", err)
	}
	return nil
}

// findEOCD scans backwards from the end of src for the EOCD signature,
// bounded by eocdSearchWindow bytes, per spec.md §4.3. It returns the raw
// EOCD record bytes (22 + comment length) and the offset at which they
// begin. If a ZIP64 locator is found in the 20 bytes immediately
// preceding, locatorOffset is non-negative and points at it.
//
// Grounded on elliotnunn/BeHierarchic/internal/zip/zip.go's getEOCD,
// adapted to this module's typed errors and to also report the locator
// position instead of re-reading it from scratch.
func findEOCD(ra io.ReaderAt, size int64) (eocdOffset int64, raw []byte, locatorOffset int64, err error) {
	if size < eocdLen {
		return 0, nil, -1, ErrEocdNotFound
	}
	maxWindow := int64(eocdSearchWindow)
	if maxWindow > size {
		maxWindow = size
	}
	buf := make([]byte, maxWindow)
	readAt := size - maxWindow
	n, rerr := ra.ReadAt(buf, readAt)
	if n < len(buf) {
		if rerr != nil && rerr != io.EOF {
			return 0, nil, -1, ioErr("read eocd search window", rerr)
		}
		buf = buf[:n]
	}

	// Scan backwards for the signature; since the comment may itself
	// contain four bytes that look like the signature, verify each
	// candidate against the stated comment length before accepting it.
	for i := len(buf) - eocdLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != sigEOCD {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20:]))
		if i+eocdLen+commentLen != len(buf) {
			continue
		}
		abs := readAt + int64(i)
		locOff := int64(-1)
		if abs-zip64EOCDLocatorLen >= 0 {
			locBuf := make([]byte, zip64EOCDLocatorLen)
			ln, lerr := ra.ReadAt(locBuf, abs-zip64EOCDLocatorLen)
			if ln == zip64EOCDLocatorLen && lerr == nil || lerr == io.EOF {
				if ln == zip64EOCDLocatorLen && binary.LittleEndian.Uint32(locBuf) == sigZip64EOCDLocator {
					locOff = abs - zip64EOCDLocatorLen
				}
			}
		}
		return abs, buf[i : i+eocdLen+commentLen], locOff, nil
	}
	return 0, nil, -1, ErrEocdNotFound
}

func readZip64EOCDLocator(ra io.ReaderAt, offset int64) (*zip64EOCDLocator, error) {
	buf := make([]byte, zip64EOCDLocatorLen)
	if _, err := ra.ReadAt(buf, offset); err != nil {
		return nil, ioErr("read zip64 eocd locator", err)
	}
	b := readBuf(buf)
	if b.uint32() != sigZip64EOCDLocator {
		return nil, wrapErr(KindInvalidSignature, "expected zip64 eocd locator signature", nil)
	}
	b.skip(4) // disk number
	off := b.uint64()
	return &zip64EOCDLocator{EOCDOffset: off}, nil
}

func readZip64EOCD(ra io.ReaderAt, offset int64) (*zip64EOCDRecord, error) {
	// Read the fixed portion; the record may carry a variable "zip64
	// extensible data sector" tail that this library does not interpret.
	buf := make([]byte, zip64EOCDLen)
	if _, err := ra.ReadAt(buf, offset); err != nil {
		return nil, ioErr("read zip64 eocd", err)
	}
	b := readBuf(buf)
	if b.uint32() != sigZip64EOCD {
		return nil, wrapErr(KindInvalidSignature, "expected zip64 eocd signature", nil)
	}
	b.skip(8)  // size of remaining record
	b.skip(2)  // version made by
	b.skip(2)  // version needed to extract
	b.skip(4)  // number of this disk
	b.skip(4)  // disk with start of CD
	b.skip(8)  // entries on this disk
	total := b.uint64()
	cdSize := b.uint64()
	cdOffset := b.uint64()
	return &zip64EOCDRecord{TotalEntries: total, CDSize: cdSize, CDOffset: cdOffset}, nil
}
