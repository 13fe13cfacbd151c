package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	orig := Version
	Version = "1.4.2"
	t.Cleanup(func() { Version = orig })

	info := Get()
	assert.Equal(t, "1.4.2", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.String(), "sqlrefine 1.4.2 (commit unknown")
}
