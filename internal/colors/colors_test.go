package colors

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(msg string, args ...any) { r.lines = append(r.lines, "debug:"+msg) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.lines = append(r.lines, "info:"+msg) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.lines = append(r.lines, "warn:"+msg) }
func (r *recordingLogger) Error(msg string, args ...any) { r.lines = append(r.lines, "error:"+msg) }

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() { SetOutput(nil, nil) })
	return &out, &errOut
}

func TestErrorWritesRedPrefixToStderr(t *testing.T) {
	out, errOut := capture(t)

	Error("something went wrong")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error:")
	assert.Contains(t, errOut.String(), "something went wrong")
	assert.Contains(t, errOut.String(), Red)
}

func TestSuccessWritesCheckmarkToStdout(t *testing.T) {
	out, _ := capture(t)

	Success("cache", "cleared")

	assert.Contains(t, out.String(), "✓")
	assert.Contains(t, out.String(), "cache cleared")
	assert.Contains(t, out.String(), Green)
}

func TestWarningAndInfo(t *testing.T) {
	out, errOut := capture(t)

	Warning("update check failed")
	Info("agent active")

	assert.Contains(t, errOut.String(), "Warning:")
	assert.Contains(t, out.String(), "agent active")
}

func TestDebugOnlyWhenEnabled(t *testing.T) {
	_, errOut := capture(t)
	prev := debugEnabled
	t.Cleanup(func() { SetDebug(prev) })

	SetDebug(false)
	Debug("hidden")
	assert.Empty(t, errOut.String())

	SetDebug(true)
	Debug("shown")
	assert.Contains(t, errOut.String(), "shown")
}

func TestMessagesMirrorToLogger(t *testing.T) {
	capture(t)
	rec := &recordingLogger{}
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })

	Error("e")
	Warning("w")
	Info("i")
	Success("s")

	assert.Equal(t, []string{"error:e", "warn:w", "info:i", "info:s"}, rec.lines)
}

func TestStructuredLogRespectsDebugAndToggle(t *testing.T) {
	_, errOut := capture(t)
	prev := debugEnabled
	t.Cleanup(func() {
		SetDebug(prev)
		EnableStructuredLogging()
	})

	SetDebug(true)
	StructuredError("agent", "register", "failed", errors.New("offline"), map[string]interface{}{"origin": "http://x"})
	assert.Contains(t, errOut.String(), `"component":"agent"`)
	assert.Contains(t, errOut.String(), `"error":"offline"`)

	errOut.Reset()
	DisableStructuredLogging()
	StructuredInfo("agent", "register", "ok", nil, nil)
	assert.Empty(t, errOut.String())
}
