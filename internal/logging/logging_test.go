package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(&buf, logiface.LevelDebug), "test")
	l.Info().Str("processor", "Output").Err(errors.New("boom")).Log("hello")

	out := buf.String()
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"processor":"Output"`)
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `boom`)
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, logiface.LevelWarning)
	l.Debug().Log("hidden")
	assert.Empty(t, buf.String())
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info().Str("k", "v").Log("nothing")
		Component(l, "x").Err().Log("nothing")
	})
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logiface.LevelWarning, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, logiface.LevelInformational, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(2, 10)
	assert.True(t, th.Allow("a"))
	assert.True(t, th.Allow("a"))
	assert.False(t, th.Allow("a"))
	assert.True(t, th.Allow("b"))

	var nilThrottle *Throttle
	assert.True(t, nilThrottle.Allow("a"))
}
