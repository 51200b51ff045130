package cli

import (
	"bytes"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/logger"
)

func runVersion(t *testing.T, args ...string) string {
	t.Helper()
	originalVersion := version
	version = "1.2.3"
	defer func() {
		version = originalVersion
		verbose = false
		logger.SetVerbose(false)
		rootCmd.SetArgs(nil)
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(append([]string{"version"}, args...))

	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestVersionCmd(t *testing.T) {
	out := runVersion(t)

	assert.Equal(t, "stitch version 1.2.3\n", out)
}

func TestVersionCmd_Verbose(t *testing.T) {
	out := runVersion(t, "--verbose")

	assert.Contains(t, out, "stitch version 1.2.3")
	assert.Contains(t, out, "go: "+runtime.Version())
}
