package prompt

import (
	"testing"

	"github.com/localinfer/localinfer/internal/bundle"
	"github.com/stretchr/testify/assert"
)

func TestBuildWrapsMessagesWithBOS(t *testing.T) {
	b := New(bundle.Config{BOSTokenID: 1, EOSTokenID: 2}, false)
	out := b.Build([]Message{{Role: "user", Content: "hello"}})
	assert.Equal(t, "<s>[user] hello\n", out)
}

func TestBuildNormalizesWhenRequested(t *testing.T) {
	b := New(bundle.Config{}, true)
	// "e" + combining acute accent (U+0065 U+0301) should normalize to
	// precomposed "é" (U+00E9) under NFC.
	out := b.Build([]Message{{Role: "user", Content: "é"}})
	assert.Contains(t, out, "é")
}

func TestBuilderExposesSpecialTokenIDs(t *testing.T) {
	b := New(bundle.Config{BOSTokenID: 1, EOSTokenID: 2}, false)
	assert.Equal(t, 1, b.BOSTokenID())
	assert.Equal(t, 2, b.EOSTokenID())
}
