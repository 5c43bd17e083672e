package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCLIRegistersExpectedSubcommands(t *testing.T) {
	root := NewCLI()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"convert", "load", "generate", "serve"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestParseIntListParsesAndTrims(t *testing.T) {
	got, err := parseIntList(" 1, 2,3 ")
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestParseIntListEmptyStringYieldsNil(t *testing.T) {
	got, err := parseIntList("")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseIntListRejectsNonInteger(t *testing.T) {
	_, err := parseIntList("1,x")
	assert.Error(t, err)
}
