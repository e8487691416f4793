package azip

import "testing"

func TestGetCodecUnsupported(t *testing.T) {
	const bogus CompressionMethod = 9999
	if _, err := getDecompressor(bogus); !isKind(err, KindUnsupportedCompression) {
		t.Errorf("getDecompressor(bogus) err = %v, want KindUnsupportedCompression", err)
	}
	if _, err := getCompressor(bogus); !isKind(err, KindUnsupportedCompression) {
		t.Errorf("getCompressor(bogus) err = %v, want KindUnsupportedCompression", err)
	}
}

func TestXzIsDecodeOnly(t *testing.T) {
	if _, err := getCompressor(Xz); !isKind(err, KindUnsupportedCompression) {
		t.Errorf("getCompressor(Xz) err = %v, want KindUnsupportedCompression (xz codec is decode-only)", err)
	}
	if _, err := getDecompressor(Xz); err != nil {
		t.Errorf("getDecompressor(Xz) err = %v, want nil", err)
	}
}

func TestRegisterCodecOverride(t *testing.T) {
	const custom CompressionMethod = 200
	defer delete(codecRegistry, custom)

	RegisterCodec(custom, storeCodec{})
	if _, err := getDecompressor(custom); err != nil {
		t.Errorf("expected registered codec to be usable, got %v", err)
	}
}
