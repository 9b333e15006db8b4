package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugToggle(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetDebug(false)
	})

	SetDebug(false)
	Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetDebug(true)
	assert.True(t, DebugEnabled())
	Debug("shown %d", 2)
	assert.Contains(t, buf.String(), "[DEBUG] ")
	assert.Contains(t, buf.String(), "shown 2")

	Info("hello")
	Error("boom")
	assert.Contains(t, buf.String(), "[INFO] ")
	assert.Contains(t, buf.String(), "[ERROR] ")
}
