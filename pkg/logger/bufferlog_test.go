package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

// captureLog redirects the standard logger for the duration of fn.
func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	}()
	fn()
	Sync()
	return buf.String()
}

func TestSuccessDropsDetails(t *testing.T) {
	out := captureLog(t, func() {
		Begin("noise")
		Append("noise", "row 3 skipped")
		Success("noise", "42 rows")
	})
	if strings.Contains(out, "row 3 skipped") {
		t.Fatalf("detail line leaked on success: %q", out)
	}
	if !strings.Contains(out, "42 rows") {
		t.Fatalf("summary missing: %q", out)
	}
}

func TestFlushErrorReplaysDetails(t *testing.T) {
	out := captureLog(t, func() {
		Begin("concerts")
		Append("concerts", "decoding as latin-1")
		FlushError("concerts", errors.New("no usable rows"))
	})
	if !strings.Contains(out, "decoding as latin-1") || !strings.Contains(out, "no usable rows") {
		t.Fatalf("buffer not replayed: %q", out)
	}
}

func TestAppendWithoutBeginPrints(t *testing.T) {
	out := captureLog(t, func() {
		Append("orphan", "printed straight away")
	})
	if !strings.Contains(out, "printed straight away") {
		t.Fatalf("unbuffered line lost: %q", out)
	}
}
