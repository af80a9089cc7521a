package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringPrefersLdflags(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"
	assert.Equal(t, "1.2.3", String())

	Version = ""
	assert.NotEmpty(t, String())
}

func TestRevisionPrefersLdflags(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })

	Commit = "abc1234"
	assert.Equal(t, "abc1234", Revision())
}
