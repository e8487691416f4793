package azip

import (
	"os"
	"testing"
	"time"
)

func TestDetectUTF8(t *testing.T) {
	tests := []struct {
		name    string
		s       string
		valid   bool
		require bool
	}{
		{"ascii", "readme.txt", true, false},
		{"utf8-multibyte", "日本語.txt", true, true},
		{"invalid", string([]byte{0xff, 0xfe}), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, require := detectUTF8(tt.s)
			if valid != tt.valid || require != tt.require {
				t.Errorf("detectUTF8(%q) = (%v, %v), want (%v, %v)", tt.s, valid, require, tt.valid, tt.require)
			}
		})
	}
}

func TestModeRoundTrip(t *testing.T) {
	modes := []os.FileMode{
		0o666,
		0o755 | os.ModeSetuid,
		0o755 | os.ModeSetgid,
		0o777 | os.ModeDir,
		0o644 | os.ModeSymlink,
	}
	for _, want := range modes {
		b := &EntryBuilder{}
		b.WithUnixMode(want)
		e := &Entry{CreatorVersion: b.CreatorVersion, ExternalAttrs: b.ExternalAttrs, Name: "x"}
		if want&os.ModeDir != 0 {
			e.Name = "x/"
		}
		got := e.Mode()
		if got.Perm() != want.Perm() {
			t.Errorf("Mode() perm = %v, want %v", got.Perm(), want.Perm())
		}
		if got&os.ModeSetuid != want&os.ModeSetuid || got&os.ModeSetgid != want&os.ModeSetgid {
			t.Errorf("Mode() = %v, want %v (setuid/setgid mismatch)", got, want)
		}
	}
}

func TestMsDosTimeRoundTrip(t *testing.T) {
	in := time.Date(2022, time.March, 14, 15, 9, 26, 0, time.UTC)
	d, tm := timeToMsDosTime(in)
	out := msDosTimeToTime(d, tm)
	if !out.Equal(in.Truncate(2 * time.Second)) {
		t.Errorf("round trip = %v, want %v", out, in.Truncate(2*time.Second))
	}
}

func TestIsDir(t *testing.T) {
	if (&Entry{Name: "a/b/"}).IsDir() != true {
		t.Error("expected trailing-slash name to be a directory")
	}
	if (&Entry{Name: "a/b"}).IsDir() != false {
		t.Error("expected non-trailing-slash name to not be a directory")
	}
}
