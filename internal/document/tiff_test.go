package document

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// buildTIFF assembles a little-endian TIFF skeleton whose IFDs chain in the
// given order. Entries are dummies; splitTIFF never decodes pixel data.
func buildTIFF(t *testing.T, ifdCount int, cycle bool) []byte {
	t.Helper()

	const ifdSize = 2 + 12 + 4 // entry count + one entry + next pointer
	buf := make([]byte, 8+ifdCount*ifdSize)
	buf[0], buf[1] = 'I', 'I'
	binary.LittleEndian.PutUint16(buf[2:4], 42)

	offsets := make([]uint32, ifdCount)
	for i := range offsets {
		offsets[i] = uint32(8 + i*ifdSize)
	}
	binary.LittleEndian.PutUint32(buf[4:8], offsets[0])

	for i, off := range offsets {
		binary.LittleEndian.PutUint16(buf[off:off+2], 1) // one dummy entry
		next := uint32(0)
		if i+1 < ifdCount {
			next = offsets[i+1]
		} else if cycle {
			next = offsets[0]
		}
		binary.LittleEndian.PutUint32(buf[off+14:off+18], next)
	}
	return buf
}

func TestSplitTIFF(t *testing.T) {
	t.Run("two frames", func(t *testing.T) {
		raw := buildTIFF(t, 2, false)
		pages, err := splitTIFF(raw)
		if err != nil {
			t.Fatalf("splitTIFF: %v", err)
		}
		if len(pages) != 2 {
			t.Fatalf("pages = %d, want 2", len(pages))
		}
		for i, pg := range pages {
			if len(pg) != len(raw) {
				t.Errorf("page %d length %d, want %d", i, len(pg), len(raw))
			}
			first := binary.LittleEndian.Uint32(pg[4:8])
			// next-IFD pointer of the selected frame must be zeroed
			entryCount := binary.LittleEndian.Uint16(pg[first : first+2])
			nextAt := int(first) + 2 + 12*int(entryCount)
			if next := binary.LittleEndian.Uint32(pg[nextAt : nextAt+4]); next != 0 {
				t.Errorf("page %d next pointer = %d, want 0", i, next)
			}
		}
		if binary.LittleEndian.Uint32(pages[0][4:8]) == binary.LittleEndian.Uint32(pages[1][4:8]) {
			t.Error("pages point at the same IFD")
		}
	})

	t.Run("single frame", func(t *testing.T) {
		pages, err := splitTIFF(buildTIFF(t, 1, false))
		if err != nil || len(pages) != 1 {
			t.Fatalf("pages, err = %d, %v", len(pages), err)
		}
	})

	t.Run("cycle detected", func(t *testing.T) {
		_, err := splitTIFF(buildTIFF(t, 2, true))
		var ie *common.InputError
		if !errors.As(err, &ie) || ie.Reason != "corrupt" {
			t.Fatalf("err = %v, want corrupt InputError", err)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		for _, raw := range [][]byte{nil, []byte("short"), []byte("XXjunkjunkjunk")} {
			if _, err := splitTIFF(raw); err == nil {
				t.Errorf("splitTIFF(%q) succeeded, want error", raw)
			}
		}
	})
}
