package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/localinfer/localinfer/internal/bundle"
	"github.com/localinfer/localinfer/internal/device"
	"github.com/localinfer/localinfer/internal/kvcache"
	"github.com/localinfer/localinfer/internal/objectstore"
	"github.com/localinfer/localinfer/internal/orchestrator"
	"github.com/localinfer/localinfer/internal/prompt"
	"github.com/localinfer/localinfer/internal/sampler"
	"github.com/localinfer/localinfer/internal/shard"
)

// LoadOptions configures a Load call.
type LoadOptions struct {
	// BundleDir is the path, relative to the store root, a prior
	// Convert wrote manifest.json/config.json/shards into.
	BundleDir string
	// DeviceName selects the internal/device implementation; empty
	// defaults to "cpu".
	DeviceName string
	// MaxSequenceLength overrides the KV cache's capacity; 0 uses the
	// bundle config's MaxPositionEmbeddings.
	MaxSequenceLength int
}

// GenerateParams configures one Generate call. A caller supplies either
// PromptTokens directly, or Messages plus Encode so the engine can build
// the prompt itself.
type GenerateParams struct {
	// PromptTokens is used as-is when non-empty; the caller has already
	// tokenized its prompt. Takes priority over Messages.
	PromptTokens []int

	// Messages, together with Encode, lets a caller drive Generate from
	// chat history instead of raw token IDs: Messages is rendered to a
	// single prompt string with internal/prompt.Builder's fixed role-tag
	// framing, then Encode turns that string into token IDs and the
	// loaded config's BOS token ID is prepended. Both must be set together, and
	// are only consulted when PromptTokens is empty.
	Messages []prompt.Message
	Encode   func(string) ([]int, error)
	// Normalize enables the prompt builder's Unicode NFC normalization
	// of message content; ignored unless Messages is set.
	Normalize bool

	MaxNewTokens int
	Sampler      sampler.Params
	// StopTokenIDs ends generation (EventDone, not EventError) the first
	// time any of these is sampled, in addition to the config's EOS.
	StopTokenIDs []int
}

// Engine drives a single loaded model through its lifecycle. It is safe
// for one Load/Generate/Stop/Unload call to be in flight at a time; the
// zero value is a ready-to-use Empty engine.
type Engine struct {
	mu    sync.Mutex
	state State

	cfg    bundle.Config
	dev    device.Device
	weights *orchestrator.Weights
	cache  *kvcache.Cache

	stopRequested atomic.Bool
}

// New returns an Engine in the Empty state.
func New() *Engine {
	return &Engine{state: Empty}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) transition(to State) error {
	if !canTransition(e.state, to) {
		return fmt.Errorf("engine: illegal transition %s -> %s", e.state, to)
	}
	slog.Debug("engine: state transition", "from", e.state, "to", to)
	e.state = to
	return nil
}

// Load reads a converted bundle from store and brings the engine to
// Ready in a background goroutine. The returned channel carries
// EventProgress events followed by one terminal EventDone or EventError,
// and is closed after that terminal event.
func (e *Engine) Load(ctx context.Context, store *objectstore.Store, opts LoadOptions) (<-chan Event, error) {
	e.mu.Lock()
	if err := e.transition(Loading); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		if err := e.load(ctx, store, opts, events); err != nil {
			e.mu.Lock()
			e.state = Empty
			e.mu.Unlock()
			events <- Event{Kind: EventError, Err: err}
			return
		}
		events <- Event{Kind: EventDone}
	}()
	return events, nil
}

func (e *Engine) load(ctx context.Context, store *objectstore.Store, opts LoadOptions, events chan<- Event) error {
	report := func(phase string, pct int) {
		select {
		case events <- Event{Kind: EventProgress, Phase: phase, Percent: pct}:
		case <-ctx.Done():
		}
	}

	report("manifest", 0)
	manifestBytes, err := store.ReadAll(joinPath(opts.BundleDir, bundle.ManifestFile))
	if err != nil {
		return fmt.Errorf("engine: reading manifest: %w", err)
	}
	var manifest bundle.Manifest
	if err := unmarshalJSON(manifestBytes, &manifest); err != nil {
		return fmt.Errorf("engine: parsing manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("engine: invalid manifest: %w", err)
	}
	report("manifest", 10)

	cfgBytes, err := store.ReadAll(joinPath(opts.BundleDir, bundle.ConfigFile))
	if err != nil {
		return fmt.Errorf("engine: reading config: %w", err)
	}
	var cfg bundle.Config
	if err := unmarshalJSON(cfgBytes, &cfg); err != nil {
		return fmt.Errorf("engine: parsing config: %w", err)
	}
	report("config", 15)

	var records []shard.Record
	for i := 0; i < manifest.NumShards; i++ {
		shardBytes, err := store.ReadAll(joinPath(opts.BundleDir, joinPath(bundle.ShardsDir, bundle.ShardFileName(i))))
		if err != nil {
			return fmt.Errorf("engine: reading shard %d: %w", i, err)
		}
		recs, err := shard.ParseShard(shardBytes)
		if err != nil {
			return fmt.Errorf("engine: parsing shard %d: %w", i, err)
		}
		records = append(records, recs...)

		pct := 15 + (i+1)*65/max(manifest.NumShards, 1)
		report("shards", min(pct, 80))
	}

	weights, err := orchestrator.LoadFromRecords(cfg, records, manifest.BlockSize)
	if err != nil {
		return fmt.Errorf("engine: assembling weights: %w", err)
	}
	report("weights", 90)

	deviceName := opts.DeviceName
	if deviceName == "" {
		deviceName = "cpu"
	}
	dev, err := device.New(deviceName)
	if err != nil {
		return fmt.Errorf("engine: creating device: %w", err)
	}

	capacity := opts.MaxSequenceLength
	if capacity == 0 {
		capacity = cfg.MaxPositionEmbeddings
	}
	kvHeads := cfg.NumKeyValueHeads
	if kvHeads == 0 {
		kvHeads = cfg.NumAttentionHeads
	}
	cache := kvcache.New(cfg.NumHiddenLayers, capacity, kvHeads, cfg.HeadDim())
	report("cache", 95)

	e.mu.Lock()
	e.cfg = cfg
	e.dev = dev
	e.weights = weights
	e.cache = cache
	if err := e.transition(Ready); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	report("ready", 100)
	return nil
}

// Generate streams tokens for one request. The returned channel is
// closed after an EventDone or EventError.
func (e *Engine) Generate(ctx context.Context, params GenerateParams) (<-chan Event, error) {
	e.mu.Lock()
	if err := e.transition(Generating); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	weights, cache, cfg := e.weights, e.cache, e.cfg
	e.mu.Unlock()

	e.stopRequested.Store(false)

	requestID := uuid.NewString()
	slog.Info("engine: generate start", "request_id", requestID, "prompt_tokens", len(params.PromptTokens), "messages", len(params.Messages))

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		start := time.Now()
		tokenCount, err := e.generate(ctx, weights, cache, cfg, params, events)

		e.mu.Lock()
		e.transition(Ready)
		e.mu.Unlock()

		if err != nil {
			slog.Error("engine: generate failed", "request_id", requestID, "error", err)
			events <- Event{Kind: EventError, Err: err}
			return
		}

		elapsed := time.Since(start).Seconds()
		var tps float64
		if elapsed > 0 {
			tps = float64(tokenCount) / elapsed
		}
		slog.Info("engine: generate done", "request_id", requestID, "token_count", tokenCount, "tokens_per_second", tps)
		events <- Event{Kind: EventDone, TokenCount: tokenCount, TokensPerSecond: tps}
	}()
	return events, nil
}

// resolvePromptTokens returns the prompt's token IDs: PromptTokens
// directly if given, otherwise cfg's prompt builder renders Messages to
// text and params.Encode turns that text into IDs, with the config's
// BOS prepended the way a caller driving the orchestrator directly
// would per internal/prompt.Builder's BOSTokenID.
func resolvePromptTokens(cfg bundle.Config, params GenerateParams) ([]int, error) {
	if len(params.PromptTokens) > 0 {
		return params.PromptTokens, nil
	}
	if len(params.Messages) == 0 {
		return nil, fmt.Errorf("engine: empty prompt")
	}
	if params.Encode == nil {
		return nil, fmt.Errorf("engine: messages given without an Encode function")
	}

	builder := prompt.New(cfg, params.Normalize)
	text := builder.Build(params.Messages)
	encoded, err := params.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("engine: encoding prompt: %w", err)
	}
	return append([]int{builder.BOSTokenID()}, encoded...), nil
}

func (e *Engine) generate(ctx context.Context, weights *orchestrator.Weights, cache *kvcache.Cache, cfg bundle.Config, params GenerateParams, events chan<- Event) (int, error) {
	promptTokens, err := resolvePromptTokens(cfg, params)
	if err != nil {
		return 0, err
	}

	s := sampler.New(params.Sampler)
	stopSet := make(map[int]bool, len(params.StopTokenIDs)+1)
	stopSet[cfg.EOSTokenID] = true
	for _, id := range params.StopTokenIDs {
		stopSet[id] = true
	}

	cache.Reset()
	logits, err := orchestrator.Prefill(weights, cache, promptTokens)
	if err != nil {
		return 0, fmt.Errorf("engine: prefill: %w", err)
	}

	maxNew := params.MaxNewTokens
	if maxNew <= 0 {
		maxNew = 256
	}

	tokenCount := 0
	for i := 0; i < maxNew; i++ {
		if ctx.Err() != nil {
			return tokenCount, ctx.Err()
		}
		if e.stopRequested.Load() {
			return tokenCount, nil
		}

		tokenID, err := s.Sample(logits)
		if err != nil {
			return tokenCount, fmt.Errorf("engine: sampling: %w", err)
		}

		select {
		case events <- Event{Kind: EventToken, TokenID: tokenID}:
		case <-ctx.Done():
			return tokenCount, ctx.Err()
		}
		tokenCount++

		if stopSet[tokenID] {
			return tokenCount, nil
		}
		if cache.Full() {
			return tokenCount, nil
		}

		logits, err = orchestrator.Decode(weights, cache, tokenID)
		if err != nil {
			return tokenCount, fmt.Errorf("engine: decode: %w", err)
		}
	}
	return tokenCount, nil
}

// Stop requests that an in-flight Generate end after its current token.
// It is a no-op if no generation is running.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

// Unload releases the loaded model and returns the engine to Empty.
func (e *Engine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Empty {
		return nil
	}
	if err := e.transition(Unloading); err != nil {
		return err
	}

	if e.cache != nil {
		e.cache.Release()
	}
	e.weights = nil
	e.cache = nil
	e.dev = nil

	return e.transition(Empty)
}

func joinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + "/" + file
}
