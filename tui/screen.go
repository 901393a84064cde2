package tui

import (
	"fmt"
	"time"

	tm "github.com/buger/goterm"
)

// Redraw wipes the terminal before the next watch frame and prints header on
// the first line. Does nothing without a TTY so piped output stays appendable.
func Redraw(header string) {
	if !HasTTY {
		return
	}
	tm.Clear()
	tm.MoveCursor(1, 1)
	if header != "" {
		tm.Println(tm.Color(tm.Bold(header), tm.CYAN))
	}
	tm.Flush()
}

// WatchHeader is the first line of a watch frame.
func WatchHeader(path string, interval time.Duration, at time.Time) string {
	return fmt.Sprintf("GET %s every %s, updated %s", path, interval, at.Format(time.TimeOnly))
}
