package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	var buf bytes.Buffer
	ShowSuccess(&buf, "logged in as %s", "s1")
	ShowError(&buf, "Request timeout - please try again")
	ShowHint(&buf, "run %s", Command("login"))

	out := buf.String()
	assert.Contains(t, out, "logged in as s1")
	assert.Contains(t, out, "Request timeout - please try again")
	assert.Contains(t, out, "shopctl login")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestTable(t *testing.T) {
	out := Table([]string{"Field", "Value"}, [][]string{{"session", "s1"}, {"expires in", "15m0s"}})
	assert.Contains(t, out, "session")
	assert.Contains(t, out, "15m0s")
}

func TestReadLine(t *testing.T) {
	v, err := ReadLine(strings.NewReader("  refresh-1 \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", v)

	v, err = ReadLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", v)
}

func TestMask(t *testing.T) {
	for in, want := range map[string]string{"refresh-1": "refr*****", "ab": "a*", "x": "*", "": ""} {
		assert.Equal(t, want, Mask(in), in)
	}
}

func TestWatchHeader(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "GET /api/orders every 5s, updated 14:05:09", WatchHeader("/api/orders", 5*time.Second, at))
}

func TestRedrawWithoutTTY(t *testing.T) {
	prev := HasTTY
	HasTTY = false
	t.Cleanup(func() { HasTTY = prev })
	assert.NotPanics(t, func() { Redraw("header") })
}
