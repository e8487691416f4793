package azip

import "testing"

func TestNeedsZip64(t *testing.T) {
	tests := []struct {
		name                         string
		uncompressed, compressed, off uint64
		want                         bool
	}{
		{"small", 100, 50, 0, false},
		{"uncompressed at limit", uint32max, 0, 0, true},
		{"compressed at limit", 0, uint32max, 0, true},
		{"offset at limit", 0, 0, uint32max, true},
		{"just under limit", uint32max - 1, uint32max - 1, uint32max - 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsZip64(tt.uncompressed, tt.compressed, tt.off); got != tt.want {
				t.Errorf("needsZip64(%d,%d,%d) = %v, want %v", tt.uncompressed, tt.compressed, tt.off, got, tt.want)
			}
		})
	}
}

func TestDecideCentralDirZip64(t *testing.T) {
	d := decideCentralDirZip64(10, 5, 100)
	if d.readerVersion != zipVersion20 || d.extra != nil {
		t.Errorf("small entry should not be promoted: %+v", d)
	}

	big := decideCentralDirZip64(uint64(1)<<33, 5, 100)
	if big.readerVersion != zipVersion45 {
		t.Errorf("large uncompressed size should force reader version 45, got %d", big.readerVersion)
	}
	if big.compressedSize != uint32max || big.uncompressedSize != uint32max || big.localHeaderOffset != uint32max {
		t.Errorf("zip64-promoted entry should sentinel all three 32-bit fields: %+v", big)
	}
	if len(big.extra) == 0 {
		t.Error("expected a zip64 extra field to be emitted")
	}
}

func TestEocdZip64Decision(t *testing.T) {
	if needed, _, _, _ := eocdZip64Decision(10, 100, 200); needed {
		t.Error("small archive should not need zip64 eocd")
	}
	if needed, records, size, offset := eocdZip64Decision(uint64(uint16max), 100, 200); !needed {
		t.Error("entry count at uint16 limit should force zip64 eocd")
	} else if records != uint16max || size != uint32max || offset != uint32max {
		t.Errorf("unexpected sentinels: records=%d size=%d offset=%d", records, size, offset)
	}
}
