package azip

import (
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/therootcompany/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Decompressor wraps a compressed-payload reader into a decompressed
// byte stream. Codecs not compiled in (or for which no decompressor is
// registered) cause entry reader construction to fail with
// UnsupportedCompression, per spec.md §4.4.
//
// Interface shape grounded on arloliu/mebo's compress/codec.go
// Compressor/Decompressor pair, adapted from mebo's whole-buffer
// Compress([]byte)/Decompress([]byte) to a streaming io.Reader/io.Writer
// shape, since ZIP payloads are read/written incrementally rather than
// buffered whole.
type Decompressor interface {
	// NewReader wraps r (the raw, still-compressed entry payload,
	// already length-limited to the entry's compressed size) and returns
	// a reader yielding decompressed bytes.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Compressor wraps a writer so that bytes written to the returned
// io.WriteCloser are compressed and forwarded to w. Close must flush any
// remaining compressed bytes, per spec.md §4.5.
type Compressor interface {
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
}

// Codec combines both directions. A codec need not implement both: the
// registry allows registering a Decompressor-only or Compressor-only
// codec (spec.md §9 "Open questions": Deflate64 is decode-only, and this
// module's Xz codec is decode-only because therootcompany/xz ships no
// writer).
type Codec interface {
	Decompressor
	Compressor
}

var codecRegistry = map[CompressionMethod]any{
	Store:   storeCodec{},
	Deflate: deflateCodec{},
	Bzip2:   bzip2Codec{},
	Lzma:    lzmaCodec{},
	Zstd:    zstdCodec{},
	Xz:      xzCodec{}, // decompressor only
}

// RegisterCodec installs (or replaces) the codec used for method. This is
// how a caller compiles in support for a method this module does not
// register by default (spec.md §9 "Pluggable codecs": "build-time feature
// toggles select which codes are registered" — in Go terms, an explicit
// call before the first archive is opened).
func RegisterCodec(method CompressionMethod, codec any) {
	codecRegistry[method] = codec
}

func getDecompressor(method CompressionMethod) (Decompressor, error) {
	c, ok := codecRegistry[method]
	if !ok {
		return nil, unsupportedCompressionErr(method)
	}
	d, ok := c.(Decompressor)
	if !ok {
		return nil, unsupportedCompressionErr(method)
	}
	return d, nil
}

func getCompressor(method CompressionMethod) (Compressor, error) {
	c, ok := codecRegistry[method]
	if !ok {
		return nil, unsupportedCompressionErr(method)
	}
	comp, ok := c.(Compressor)
	if !ok {
		return nil, unsupportedCompressionErr(method)
	}
	return comp, nil
}

// storeCodec is the identity codec for method 0: the "compressed" bytes
// are the uncompressed bytes.
type storeCodec struct{}

func (storeCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (storeCodec) NewWriter(w io.Writer, _ int) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// deflateCodec wires method 8 to klauspost/compress/flate, grounded on
// arloliu/mebo's dependency on klauspost/compress (also carried
// indirectly by elliotnunn/BeHierarchic's go.mod).
type deflateCodec struct{}

func (deflateCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

func (deflateCodec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	if level == 0 {
		level = flate.DefaultCompression
	}
	fw, err := flate.NewWriter(w, level)
	if err != nil {
		return nil, compressionErr("create deflate writer", err)
	}
	return fw, nil
}

// bzip2Codec wires method 12 to github.com/dsnet/compress/bzip2, grounded
// on other_examples' dsnet-compress/bzip2/{reader,writer}.go.
type bzip2Codec struct{}

func (bzip2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	br, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, compressionErr("create bzip2 reader", err)
	}
	return br, nil
}

func (bzip2Codec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	cfg := &bzip2.WriterConfig{}
	if level > 0 {
		cfg.Level = level
	}
	bw, err := bzip2.NewWriter(w, cfg)
	if err != nil {
		return nil, compressionErr("create bzip2 writer", err)
	}
	return bw, nil
}

// lzmaCodec wires method 14 to github.com/ulikunitz/xz/lzma. No LZMA
// implementation appears anywhere in the retrieved corpus; this is an
// out-of-pack dependency named (not grounded) per the rule for ungrounded
// picks, chosen as the sibling of elliotnunn/BeHierarchic's
// therootcompany/xz (same author's xz/lzma family).
type lzmaCodec struct{}

func (lzmaCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, compressionErr("create lzma reader", err)
	}
	return io.NopCloser(lr), nil
}

func (lzmaCodec) NewWriter(w io.Writer, _ int) (io.WriteCloser, error) {
	lw, err := lzma.NewWriter(w)
	if err != nil {
		return nil, compressionErr("create lzma writer", err)
	}
	return lw, nil
}

// zstdCodec wires method 93 to github.com/klauspost/compress/zstd,
// grounded directly on arloliu/mebo's compress/zstd_pure.go (the
// non-cgo build of ZstdCompressor/ZstdDecompressor), generalized from
// mebo's pooled whole-buffer encoders/decoders to per-entry streaming
// ones since archive payloads are not bounded to mebo's small
// columnar-block sizes.
type zstdCodec struct{}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, compressionErr("create zstd reader", err)
	}
	return zr.IOReadCloser(), nil
}

func (zstdCodec) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	// zstd's encoder levels are an enum (SpeedFastest..SpeedBestCompression),
	// not a linear scale, so the entry's opaque Level hint only selects
	// "fast" vs "default" rather than being mapped 1:1, the same loose
	// mapping arloliu/mebo's zstd_pure.go applies (zstd.SpeedDefault).
	el := zstd.SpeedDefault
	if level < 0 {
		el = zstd.SpeedFastest
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(el))
	if err != nil {
		return nil, compressionErr("create zstd writer", err)
	}
	return zw, nil
}

// xzCodec wires method 95 to github.com/therootcompany/xz, grounded on
// elliotnunn/BeHierarchic's probe.go and fs.go, both of which call
// xz.NewReader(r, xz.DefaultDictMax) directly. That package ships no
// writer type, so this codec implements Decompressor only; entry_stream
// with method Xz therefore fails UnsupportedCompression on the write
// path specifically, matching the documented decode-only asymmetry in
// spec.md §9.
type xzCodec struct{}

func (xzCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r, xz.DefaultDictMax)
	if err != nil {
		return nil, compressionErr("create xz reader", err)
	}
	return io.NopCloser(xr), nil
}
