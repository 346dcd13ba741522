package document

import (
	"encoding/binary"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
)

// splitTIFF expands a (possibly multi-frame) TIFF into standalone single-frame
// TIFF buffers, order preserved.
//
// Each output copies the full original payload and only rewrites two things:
// the header's first-IFD pointer to the target frame's IFD, and that IFD's
// next-IFD pointer to zero. Every internal offset stays valid that way, and a
// single-frame decoder sees exactly one image.
func splitTIFF(raw []byte) ([][]byte, error) {
	if len(raw) < 8 {
		return nil, &common.InputError{Reason: "corrupt", Detail: "TIFF too short"}
	}

	var order binary.ByteOrder
	switch {
	case raw[0] == 'I' && raw[1] == 'I':
		order = binary.LittleEndian
	case raw[0] == 'M' && raw[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, &common.InputError{Reason: "corrupt", Detail: "bad TIFF byte order mark"}
	}
	if order.Uint16(raw[2:4]) != 42 {
		return nil, &common.InputError{Reason: "corrupt", Detail: "bad TIFF magic"}
	}

	var pages [][]byte
	seen := map[uint32]struct{}{}
	offset := order.Uint32(raw[4:8])

	for offset != 0 {
		if _, dup := seen[offset]; dup {
			return nil, &common.InputError{Reason: "corrupt", Detail: "TIFF IFD cycle"}
		}
		seen[offset] = struct{}{}

		if int(offset)+2 > len(raw) {
			return nil, &common.InputError{Reason: "corrupt", Detail: "TIFF IFD offset out of range"}
		}
		entryCount := order.Uint16(raw[offset : offset+2])
		nextPtrAt := int(offset) + 2 + 12*int(entryCount)
		if nextPtrAt+4 > len(raw) {
			return nil, &common.InputError{Reason: "corrupt", Detail: "TIFF IFD truncated"}
		}

		page := make([]byte, len(raw))
		copy(page, raw)
		order.PutUint32(page[4:8], offset)
		order.PutUint32(page[nextPtrAt:nextPtrAt+4], 0)
		pages = append(pages, page)

		offset = order.Uint32(raw[nextPtrAt : nextPtrAt+4])
	}

	if len(pages) == 0 {
		return nil, &common.InputError{Reason: "corrupt", Detail: "TIFF has no frames"}
	}
	return pages, nil
}
