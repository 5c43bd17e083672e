package safetensors

import "os"

// FileSource adapts an *os.File to the Source interface, reading slices
// directly from disk so the converter never has to hold the archive in
// memory.
type FileSource struct {
	f    *os.File
	size int64
}

// NewFileSource stats f once to learn its size and wraps it as a Source.
func NewFileSource(f *os.File) (*FileSource, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &FileSource{f: f, size: fi.Size()}, nil
}

func (s *FileSource) Length() int64 { return s.size }

func (s *FileSource) ReadSlice(start, end int64) ([]byte, error) {
	buf := make([]byte, end-start)
	if _, err := s.f.ReadAt(buf, start); err != nil {
		return nil, err
	}
	return buf, nil
}

// BytesSource adapts an in-memory buffer to Source, used in tests and for
// small archives already resident in memory (e.g. downloaded chunks).
type BytesSource struct {
	buf []byte
}

func NewBytesSource(buf []byte) *BytesSource {
	return &BytesSource{buf: buf}
}

func (s *BytesSource) Length() int64 { return int64(len(s.buf)) }

func (s *BytesSource) ReadSlice(start, end int64) ([]byte, error) {
	return s.buf[start:end], nil
}
