package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_SequencesLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewTo(&buf, false)

	r.Log("first")
	r.Log("second %s", Count(12482))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "   1 +")
	assert.Contains(t, lines[0], "| first")
	assert.Contains(t, lines[1], "   2 +")
	assert.Contains(t, lines[1], "| second 12,482")
}

func TestVerbose_SuppressedLinesLeaveNoGap(t *testing.T) {
	var buf bytes.Buffer
	r := NewTo(&buf, false)

	r.Verbose("hidden")
	r.Log("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "   1 +", "suppressed verbose lines must not consume sequence numbers")
}

func TestVerbose_EmitsWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	r := NewTo(&buf, true)
	r.Verbose("detail")
	assert.Contains(t, buf.String(), "| detail")
}
