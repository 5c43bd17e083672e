// Package shard implements the self-describing tensor record format a
// converted bundle's shard files are made of: a tight
// concatenation of records, each carrying its own name, dtype, shape, and
// data length, with no trailer or checksum -- shards are trusted local
// cache artifacts, re-derivable from the same source archive.
//
// Grounded on fs/ggml/gguf.go's generic typed-read helper
// (readGGUF[T]/readGGUFString) and gguf_write.go's binary.Write-based
// encoder, adapted from GGUF's KV-table + tensor-table layout to the
// flatter one-record-per-tensor stream this format uses.
package shard

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/localinfer/localinfer/internal/quant"
)

// Record is one decoded tensor entry from a shard file.
type Record struct {
	Name  string
	DType quant.DType
	Shape []int
	Data  []byte
}

// byteOrder is fixed little-endian across every record field.
var byteOrder = binary.LittleEndian

// PackTensor encodes a single tensor record per the layout:
//
//	u32 name_len | name bytes | u8 dtype | u8 ndim | u32×ndim shape | u32 data_len | data bytes
func PackTensor(name string, dtype quant.DType, shape []int, data []byte) ([]byte, error) {
	if len(shape) == 0 || len(shape) > 4 {
		return nil, fmt.Errorf("shard: shape must have 1-4 dims, got %d", len(shape))
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, uint32(len(name))); err != nil {
		return nil, err
	}
	buf.WriteString(name)

	buf.WriteByte(byte(dtype))
	buf.WriteByte(byte(len(shape)))

	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("shard: shape dims must be positive, got %d", d)
		}
		if err := binary.Write(&buf, byteOrder, uint32(d)); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, byteOrder, uint32(len(data))); err != nil {
		return nil, err
	}
	buf.Write(data)

	return buf.Bytes(), nil
}

// ParseShard iterates every record in a shard's byte content until the
// stream is fully consumed. It fails if any declared length field would
// read past the remaining bytes -- a reader must reject a truncated or
// corrupt shard rather than returning a partial tensor.
func ParseShard(data []byte) ([]Record, error) {
	var records []Record
	off := 0

	for off < len(data) {
		rec, n, err := parseOne(data[off:])
		if err != nil {
			return nil, fmt.Errorf("shard: record at offset %d: %w", off, err)
		}
		records = append(records, rec)
		off += n
	}

	return records, nil
}

func parseOne(data []byte) (Record, int, error) {
	r := bytesReader{data: data}

	nameLen, err := r.u32()
	if err != nil {
		return Record{}, 0, err
	}
	name, err := r.bytesN(int(nameLen))
	if err != nil {
		return Record{}, 0, err
	}

	dtypeByte, err := r.u8()
	if err != nil {
		return Record{}, 0, err
	}

	ndim, err := r.u8()
	if err != nil {
		return Record{}, 0, err
	}

	shape := make([]int, ndim)
	for i := range shape {
		d, err := r.u32()
		if err != nil {
			return Record{}, 0, err
		}
		shape[i] = int(d)
	}

	dataLen, err := r.u32()
	if err != nil {
		return Record{}, 0, err
	}
	tensorData, err := r.bytesN(int(dataLen))
	if err != nil {
		return Record{}, 0, err
	}

	rec := Record{
		Name:  string(name),
		DType: quant.DType(dtypeByte),
		Shape: shape,
		Data:  tensorData,
	}
	return rec, r.off, nil
}

// bytesReader is a tiny bounds-checked cursor over a byte slice; it never
// panics on truncated input, returning an error instead so a corrupt
// shard surfaces as a handled error rather than a crash.
type bytesReader struct {
	data []byte
	off  int
}

func (r *bytesReader) need(n int) error {
	if r.off+n > len(r.data) {
		return fmt.Errorf("unexpected end of record (need %d bytes, have %d)", n, len(r.data)-r.off)
	}
	return nil
}

func (r *bytesReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *bytesReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := byteOrder.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *bytesReader) bytesN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}
