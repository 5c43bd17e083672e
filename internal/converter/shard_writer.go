package converter

import (
	"fmt"
	"io"

	"github.com/localinfer/localinfer/internal/bundle"
	"github.com/localinfer/localinfer/internal/objectstore"
)

// shardWriter rolls packed tensor records across shard_NN.bin files,
// opening a new shard whenever the current one would exceed maxBytes.
// The first record always goes to shard_00.bin even if it alone exceeds
// the cap -- a single oversized tensor is never split across shards.
type shardWriter struct {
	dst       *objectstore.Store
	dir       string
	maxBytes  int64
	blockSize int

	shardCount int
	cur        io.WriteCloser
	curBytes   int64
	relPaths   []string
}

func (w *shardWriter) write(p pendingRecord) error {
	packed, err := p.pack()
	if err != nil {
		return err
	}

	if w.cur == nil || (w.curBytes > 0 && w.curBytes+int64(len(packed)) > w.maxBytes) {
		if err := w.rollover(); err != nil {
			return err
		}
	}

	n, err := w.cur.Write(packed)
	if err != nil {
		return err
	}
	w.curBytes += int64(n)
	return nil
}

func (w *shardWriter) rollover() error {
	if w.cur != nil {
		if err := w.cur.Close(); err != nil {
			return fmt.Errorf("closing shard %d: %w", w.shardCount-1, err)
		}
	}

	rel := join(w.dir, join(bundle.ShardsDir, bundle.ShardFileName(w.shardCount)))
	f, err := w.dst.Writer(rel)
	if err != nil {
		return err
	}
	w.cur = f
	w.curBytes = 0
	w.relPaths = append(w.relPaths, rel)
	w.shardCount++
	return nil
}

func (w *shardWriter) close() error {
	if w.cur == nil {
		return nil
	}
	return w.cur.Close()
}

// shardDigests computes a sha256 digest for every shard written, in
// shard order, for the manifest's supplemental ShardDigests field.
func (w *shardWriter) shardDigests(dst *objectstore.Store) ([]string, error) {
	digests := make([]string, len(w.relPaths))
	for i, rel := range w.relPaths {
		d, err := dst.Digest(rel)
		if err != nil {
			return nil, err
		}
		digests[i] = d
	}
	return digests, nil
}
