// Package prompt builds the raw text a tokenizer encodes before the
// forward pass, wrapping each message in a fixed role-tag framing and
// optionally Unicode-normalizing it first.
//
// This engine treats tokenization itself as an external collaborator
// (tokenizer.json is passed through verbatim, not
// reimplemented here); Builder only owns the text-shaping step ahead of
// it, grounded on convert/tokenizer_parser.go's special-token bookkeeping
// (BOS/EOS handling) adapted from archive-time vocabulary parsing to
// request-time prompt assembly.
package prompt

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/localinfer/localinfer/internal/bundle"
)

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Builder assembles a raw prompt string from a message list. The framing
// is the same for every config (a literal "<s>" before the first message
// and a "[role] " tag on each); the config only supplies the token IDs
// returned by BOSTokenID and EOSTokenID.
type Builder struct {
	cfg      bundle.Config
	normalize bool
}

// New constructs a Builder for cfg. When normalize is true, every
// message's content is put through Unicode NFC normalization before
// assembly, so visually identical but differently-encoded input (e.g. a
// precomposed vs. combining-character accent) tokenizes identically.
func New(cfg bundle.Config, normalize bool) *Builder {
	return &Builder{cfg: cfg, normalize: normalize}
}

// Build renders messages into the single string a tokenizer encodes.
// Llama-family chat formatting wraps each turn in a role tag; this is
// deliberately minimal compared to a full Jinja chat template, since this
// engine has no template engine of its own -- callers needing an exact
// upstream chat template should pre-render it and pass a single "user"
// message through Build unchanged.
func (b *Builder) Build(messages []Message) string {
	var sb strings.Builder

	for i, m := range messages {
		content := m.Content
		if b.normalize {
			content = norm.NFC.String(content)
		}

		if i == 0 {
			sb.WriteString("<s>")
		}
		sb.WriteString("[")
		sb.WriteString(m.Role)
		sb.WriteString("] ")
		sb.WriteString(content)
		sb.WriteString("\n")
	}

	return sb.String()
}

// BOSTokenID and EOSTokenID expose the config's special token IDs so a
// caller driving the orchestrator directly (bypassing a BPE tokenizer,
// e.g. in tests) can prepend/append them without reaching into
// bundle.Config itself.
func (b *Builder) BOSTokenID() int { return b.cfg.BOSTokenID }
func (b *Builder) EOSTokenID() int { return b.cfg.EOSTokenID }
