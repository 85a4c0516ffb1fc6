package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	origVersion, origCommit, origTime := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = origVersion, origCommit, origTime })

	Version, GitCommit, BuildTime = "v1.0.0", "unknown", "unknown"
	assert.Equal(t, "v1.0.0", String())

	GitCommit, BuildTime = "abc123", "2026-01-02"
	assert.Equal(t, "v1.0.0 (abc123, 2026-01-02)", String())
}
