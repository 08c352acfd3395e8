// binreader.go - Endian-aware readers over an immutable byte buffer
//
// Every parser walks its input through one of these cursors. Reads past the
// end of the buffer surface as a StructuralError naming the field, so a
// truncated required section is reported with the exact offset.

package importer

import (
	"encoding/binary"
	"strings"
)

// byteReader is a bounds-checked cursor over a byte slice. The zero offset
// is the start of the buffer; format is used for error context only.
type byteReader struct {
	data   []byte
	offset int
	format string
}

func newByteReader(data []byte, format string) *byteReader {
	return &byteReader{data: data, format: format}
}

func (r *byteReader) remaining() int {
	return len(r.data) - r.offset
}

func (r *byteReader) need(n int, field string) error {
	if r.remaining() < n {
		return structErrf(r.format, r.offset, field,
			"need %d bytes, %d remain", n, r.remaining())
	}
	return nil
}

func (r *byteReader) u8(field string) (byte, error) {
	if err := r.need(1, field); err != nil {
		return 0, err
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *byteReader) be16(field string) (uint16, error) {
	if err := r.need(2, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *byteReader) le16(field string) (uint16, error) {
	if err := r.need(2, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *byteReader) be32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *byteReader) le32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

// bytes returns a sub-slice of the input; no copy is made.
func (r *byteReader) bytes(n int, field string) ([]byte, error) {
	if err := r.need(n, field); err != nil {
		return nil, err
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

// paddedString reads a fixed-width string field, trimming trailing NULs and
// spaces the way SID/TED/NSF style headers pad their name fields.
func (r *byteReader) paddedString(n int, field string) (string, error) {
	b, err := r.bytes(n, field)
	if err != nil {
		return "", err
	}
	return trimPadding(b), nil
}

// stringAt reads a fixed-width padded string at an absolute offset without
// moving the cursor.
func (r *byteReader) stringAt(offset, n int, field string) (string, error) {
	if offset < 0 || offset+n > len(r.data) {
		return "", structErrf(r.format, offset, field, "need %d bytes at offset %d", n, offset)
	}
	return trimPadding(r.data[offset : offset+n]), nil
}

func (r *byteReader) skip(n int, field string) error {
	if err := r.need(n, field); err != nil {
		return err
	}
	r.offset += n
	return nil
}

func (r *byteReader) seek(offset int, field string) error {
	if offset < 0 || offset > len(r.data) {
		return structErrf(r.format, r.offset, field, "seek target %d out of range", offset)
	}
	r.offset = offset
	return nil
}

// trimPadding cuts a fixed-width header field at the first NUL and strips
// trailing spaces.
func trimPadding(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	return strings.TrimRight(string(b[:end]), " ")
}

// Free-standing peek helpers for detectors, which must not allocate or
// mutate anything.

func peekBE16(data []byte, offset int) (uint16, bool) {
	if offset < 0 || offset+2 > len(data) {
		return 0, false
	}
	return binary.BigEndian.Uint16(data[offset:]), true
}

func peekBE32(data []byte, offset int) (uint32, bool) {
	if offset < 0 || offset+4 > len(data) {
		return 0, false
	}
	return binary.BigEndian.Uint32(data[offset:]), true
}

func peekLE16(data []byte, offset int) (uint16, bool) {
	if offset < 0 || offset+2 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data[offset:]), true
}
