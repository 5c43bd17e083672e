// Package converter drives the bounded-memory pipeline that turns a
// safetensors archive into a quantized shard bundle: it streams each
// tensor in turn, decides a target dtype, quantizes or re-encodes it,
// and rolls the output across shard_NN.bin files capped at a fixed byte
// budget, reporting progress as it goes.
//
// Grounded on runner/ollamarunner/runner_compute.go's computeBatch, the
// closest analogue available to a staged, progress-reporting pipeline
// over a sequence of named tensors, and convert/convert_model.go's
// per-tensor dtype-decision dispatch (adapted here from GGUF tensor
// writing to quantized shard writing).
package converter

import (
	"fmt"
	"time"

	"github.com/localinfer/localinfer/internal/bundle"
	"github.com/localinfer/localinfer/internal/modelconfig"
	"github.com/localinfer/localinfer/internal/objectstore"
	"github.com/localinfer/localinfer/internal/quant"
	"github.com/localinfer/localinfer/internal/safetensors"
)

// Phase names reported through Options.OnProgress, in the order they
// occur, with their percent-complete span.
const (
	PhaseHeader   = "header"   // 0-5
	PhaseInspect  = "inspect"  // 5-10
	PhaseConvert  = "convert"  // 10-85
	PhaseFinalize = "finalize" // 85-100
)

// DefaultMaxShardBytes is the shard size cap used when Options.MaxShardBytes
// is zero, the midpoint of the accepted 256-512 MiB range.
const DefaultMaxShardBytes = 384 << 20

// MinTensorElemsForQuant is the smallest element count a weight tensor
// must have before it is eligible for block quantization; smaller tensors
// (norm weights, biases, rope frequency tables) are stored as F16 under a
// quantized or F16 target and as F32 under an F32 target, since block
// quantizing a handful of values wastes more on scale overhead than it
// saves.
const MinTensorElemsForQuant = 1024

// Options configures a single conversion run.
type Options struct {
	// TargetQuant is the dtype eligible 2-D+ weight tensors are converted
	// to: quant.Q4, quant.Q8, or quant.F16 to skip quantization entirely.
	TargetQuant quant.DType
	// BlockSize is the quantization block length; defaults to
	// quant.DefaultBlockSize when zero.
	BlockSize int
	// Calibrate enables Q4's 99th-percentile outlier calibration.
	Calibrate bool
	// MaxShardBytes caps each shard file's size; defaults to
	// DefaultMaxShardBytes when zero.
	MaxShardBytes int64
	// MistralOverride and GemmaOverride disambiguate architectures that
	// share identical tensor-name shapes with llama, per
	// modelconfig.DetectArch.
	MistralOverride bool
	GemmaOverride   bool
	// OnProgress, if set, is called as the pipeline advances. percent is
	// in [0,100] and monotonically non-decreasing across the whole run.
	OnProgress func(phase string, percent int)
}

func (o Options) blockSize() int {
	if o.BlockSize == 0 {
		return quant.DefaultBlockSize
	}
	return o.BlockSize
}

func (o Options) maxShardBytes() int64 {
	if o.MaxShardBytes == 0 {
		return DefaultMaxShardBytes
	}
	return o.MaxShardBytes
}

func (o Options) report(phase string, percent int) {
	if o.OnProgress != nil {
		o.OnProgress(phase, percent)
	}
}

// Result is the outcome of a completed conversion.
type Result struct {
	Manifest bundle.Manifest
	Config   bundle.Config
}

// Convert reads every tensor from src, quantizes/re-encodes it per opts,
// and writes a complete bundle (manifest.json, config.json, and one or
// more shards/shard_NN.bin files) under bundleDir in dst. tokenizerJSON,
// if non-nil, is passed through verbatim as tokenizer.json.
//
// On any failure, Convert removes bundleDir from dst before returning, so
// a caller never has to clean up a half-written bundle itself.
func Convert(src *safetensors.Reader, dst *objectstore.Store, bundleDir string, tokenizerJSON []byte, opts Options) (result Result, err error) {
	defer func() {
		if err != nil && bundleDir != "" {
			if rmErr := dst.RemoveSubtree(bundleDir); rmErr != nil {
				err = fmt.Errorf("%w (removing partial bundle also failed: %v)", err, rmErr)
			}
		}
	}()

	opts.report(PhaseHeader, 0)
	tensors := src.Tensors()
	opts.report(PhaseHeader, 5)

	shapes := make([]modelconfig.TensorShape, len(tensors))
	for i, t := range tensors {
		shapes[i] = modelconfig.TensorShape{Name: t.Name, Shape: toIntShape(t.Shape)}
	}
	arch := modelconfig.DetectArch(shapes, opts.MistralOverride, opts.GemmaOverride)
	cfg := modelconfig.Infer(shapes, arch)
	opts.report(PhaseInspect, 10)

	w := &shardWriter{
		dst:       dst,
		dir:       bundleDir,
		maxBytes:  opts.maxShardBytes(),
		blockSize: opts.blockSize(),
	}

	for i, meta := range tensors {
		raw, err := src.ReadTensor(meta)
		if err != nil {
			return Result{}, fmt.Errorf("converter: reading tensor %q: %w", meta.Name, err)
		}

		record, err := convertOne(meta, raw, opts)
		if err != nil {
			return Result{}, fmt.Errorf("converter: converting tensor %q: %w", meta.Name, err)
		}

		if err := w.write(record); err != nil {
			return Result{}, fmt.Errorf("converter: writing tensor %q: %w", meta.Name, err)
		}

		pct := 10 + (i+1)*75/max(len(tensors), 1)
		opts.report(PhaseConvert, min(pct, 85))
	}

	if err := w.close(); err != nil {
		return Result{}, fmt.Errorf("converter: finalizing shards: %w", err)
	}
	opts.report(PhaseFinalize, 90)

	if tokenizerJSON != nil {
		if err := dst.WriteAll(join(bundleDir, bundle.TokenizerFile), tokenizerJSON); err != nil {
			return Result{}, fmt.Errorf("converter: writing tokenizer: %w", err)
		}
	}

	cfgBytes, err := marshalIndent(cfg)
	if err != nil {
		return Result{}, err
	}
	if err := dst.WriteAll(join(bundleDir, bundle.ConfigFile), cfgBytes); err != nil {
		return Result{}, fmt.Errorf("converter: writing config: %w", err)
	}

	digests, err := w.shardDigests(dst)
	if err != nil {
		return Result{}, fmt.Errorf("converter: digesting shards: %w", err)
	}

	manifest := bundle.Manifest{
		ACCVersion:   "1",
		Arch:         string(arch),
		Quant:        opts.TargetQuant.String(),
		NumShards:    w.shardCount,
		TensorCount:  len(tensors),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		BlockSize:    opts.blockSize(),
		ShardDigests: digests,
	}
	if err := manifest.Validate(); err != nil {
		return Result{}, err
	}

	mBytes, err := marshalIndent(manifest)
	if err != nil {
		return Result{}, err
	}
	if err := dst.WriteAll(join(bundleDir, bundle.ManifestFile), mBytes); err != nil {
		return Result{}, fmt.Errorf("converter: writing manifest: %w", err)
	}

	opts.report(PhaseFinalize, 100)
	return Result{Manifest: manifest, Config: cfg}, nil
}

func toIntShape(shape []int64) []int {
	out := make([]int, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	return out
}

func join(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + "/" + file
}
