// Package safetensors implements a streaming reader for the safetensors
// tensor archive format: an 8-byte little-endian header length, a JSON
// header describing each tensor's dtype/shape/byte range, and a raw data
// region. It is grounded on fs/ggml's scratch-buffer, read-typed-value
// style (gguf_reader.go) adapted to safetensors' simpler single JSON
// header instead of GGUF's KV+tensor-table binary encoding.
//
// The critical contract: the reader never materializes the
// full archive. It reads the header once, then issues exactly one slice
// read per requested tensor.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
)

// Source is any random-access byte provider the reader can pull tensor
// data from: an *os.File, an in-memory buffer, or an HTTP range-request
// client.
type Source interface {
	Length() int64
	ReadSlice(start, end int64) ([]byte, error)
}

// TensorMeta describes one tensor's declared dtype, shape, and byte
// offsets (relative to the start of the data region) as found in the
// header.
type TensorMeta struct {
	Name        string
	DType       string
	Shape       []int64
	DataOffsets [2]int64
}

// Reader parses a safetensors archive's header and serves tensors from it
// on demand. Tensor iteration order is the header's declared key order,
// since Go map iteration is unordered and the header itself is a JSON
// object -- we re-derive declaration order during parsing.
type Reader struct {
	src        Source
	dataOrigin int64
	order      []string
	metas      map[string]TensorMeta
}

// headerEntry mirrors one value of the safetensors JSON header object.
// "__metadata__" entries don't have dtype/shape/data_offsets and are
// skipped.
type headerEntry struct {
	DType       string  `json:"dtype"`
	Shape       []int64 `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Open reads the 8-byte header length and the JSON header from src, but
// does not read any tensor data.
func Open(src Source) (*Reader, error) {
	if src.Length() < 8 {
		return nil, fmt.Errorf("safetensors: archive too small for header length")
	}

	lenBytes, err := src.ReadSlice(0, 8)
	if err != nil {
		return nil, fmt.Errorf("safetensors: reading header length: %w", err)
	}

	lenLow := binary.LittleEndian.Uint32(lenBytes[0:4])
	lenHigh := binary.LittleEndian.Uint32(lenBytes[4:8])
	if lenHigh != 0 {
		return nil, fmt.Errorf("safetensors: header too large")
	}
	headerLen := int64(lenLow)

	if 8+headerLen > src.Length() {
		return nil, fmt.Errorf("safetensors: header length exceeds archive size")
	}

	headerBytes, err := src.ReadSlice(8, 8+headerLen)
	if err != nil {
		return nil, fmt.Errorf("safetensors: reading header: %w", err)
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("safetensors: invalid JSON header: %w", err)
	}

	// json.RawMessage values don't preserve source order through a map,
	// so we re-derive declaration order from the raw text by scanning
	// for the keys' first occurrence offsets.
	order := declarationOrder(headerBytes, raw)

	metas := make(map[string]TensorMeta, len(raw))
	for name, rm := range raw {
		if name == "__metadata__" {
			continue
		}
		var he headerEntry
		if err := json.Unmarshal(rm, &he); err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: invalid entry: %w", name, err)
		}
		metas[name] = TensorMeta{
			Name:        name,
			DType:       he.DType,
			Shape:       he.Shape,
			DataOffsets: he.DataOffsets,
		}
	}

	filteredOrder := order[:0:0]
	for _, name := range order {
		if _, ok := metas[name]; ok {
			filteredOrder = append(filteredOrder, name)
		}
	}

	return &Reader{
		src:        src,
		dataOrigin: 8 + headerLen,
		order:      filteredOrder,
		metas:      metas,
	}, nil
}

// declarationOrder recovers the header's key declaration order by
// locating each key's first quoted occurrence in the raw header text.
// json.Unmarshal into a map loses order; this keeps iteration
// deterministic without a custom streaming JSON decoder.
func declarationOrder(raw []byte, keys map[string]json.RawMessage) []string {
	type pos struct {
		name string
		idx  int
	}
	positions := make([]pos, 0, len(keys))
	for name := range keys {
		needle := []byte(`"` + name + `"`)
		idx := indexOf(raw, needle)
		positions = append(positions, pos{name: name, idx: idx})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].idx < positions[j].idx })

	order := make([]string, len(positions))
	for i, p := range positions {
		order[i] = p.name
	}
	return order
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}

// Tensors returns tensor metadata in header declaration order, skipping
// "__metadata__".
func (r *Reader) Tensors() []TensorMeta {
	out := make([]TensorMeta, len(r.order))
	for i, name := range r.order {
		out[i] = r.metas[name]
	}
	return out
}

// Lookup returns the metadata for a single tensor by name.
func (r *Reader) Lookup(name string) (TensorMeta, bool) {
	m, ok := r.metas[name]
	return m, ok
}

// ReadTensor issues exactly one slice read to fetch a tensor's raw bytes
// from the data region.
func (r *Reader) ReadTensor(meta TensorMeta) ([]byte, error) {
	start := r.dataOrigin + meta.DataOffsets[0]
	end := r.dataOrigin + meta.DataOffsets[1]
	if end < start {
		return nil, fmt.Errorf("safetensors: tensor %q has negative byte range", meta.Name)
	}
	data, err := r.src.ReadSlice(start, end)
	if err != nil {
		return nil, fmt.Errorf("safetensors: reading tensor %q: %w", meta.Name, err)
	}
	return data, nil
}
