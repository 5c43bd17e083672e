// Package bundle defines the on-disk layout of a converted model bundle
// manifest.json, config.json, an optional tokenizer.json
// passthrough, one or more shards/shard_NN.bin files, and an optional
// webgpu/kernels.wgsl shader source snapshot.
//
// Grounded on the manifest.json conventions in
// server/create_convert.go (not retained in this tree; the JSON-manifest
// idiom is carried forward here) and convert/convert_kv.go's typed
// key-value accessors, adapted from GGUF metadata to a plain JSON
// manifest since this format has no KV table of its own.
package bundle

import (
	"fmt"
)

// ShardFileName returns the fixed shard file name for shard index n,
// e.g. shard_00.bin.
func ShardFileName(n int) string {
	return fmt.Sprintf("shard_%02d.bin", n)
}

const (
	ManifestFile = "manifest.json"
	ConfigFile   = "config.json"
	TokenizerFile = "tokenizer.json"
	ShardsDir    = "shards"
	KernelsFile  = "webgpu/kernels.wgsl"
)

// Manifest is the required top-level metadata object persisted as
// manifest.json.
type Manifest struct {
	ACCVersion string `json:"acc_version"`
	Arch       string `json:"arch"`
	Quant      string `json:"quant"`
	NumShards  int    `json:"num_shards"`
	TensorCount int   `json:"tensor_count"`
	CreatedAt  string `json:"created_at"`
	BlockSize  int    `json:"block_size"`

	// ShardDigests is a supplemental field recording the SHA-256 of each
	// shard file for integrity
	// verification of cached bundles, grounded on
	// parser/files.go::digestForFile.
	ShardDigests []string `json:"shard_digests,omitempty"`
}

// Validate checks the invariants a well-formed manifest must satisfy:
// num_shards must be non-negative and match the number of digests when
// digests are present, and block_size must be 0 (unset) or in the
// accepted 16-64 range.
func (m Manifest) Validate() error {
	if m.NumShards < 0 {
		return fmt.Errorf("bundle: manifest num_shards must be non-negative, got %d", m.NumShards)
	}
	if len(m.ShardDigests) > 0 && len(m.ShardDigests) != m.NumShards {
		return fmt.Errorf("bundle: manifest has %d shard digests but num_shards=%d", len(m.ShardDigests), m.NumShards)
	}
	if m.BlockSize != 0 && (m.BlockSize < 16 || m.BlockSize > 64) {
		return fmt.Errorf("bundle: manifest block_size %d out of [16,64]", m.BlockSize)
	}
	return nil
}
