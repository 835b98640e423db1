package logger

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestAsyncWriterFansOutToAllSinks(t *testing.T) {
	a := &bytes.Buffer{}
	b := &bytes.Buffer{}
	w := newAsyncWriter([]io.Writer{a, b}, 1024)

	for _, line := range []string{"one\n", "two\n"} {
		if err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := "one\ntwo\n"
	if a.String() != want || b.String() != want {
		t.Fatalf("sinks diverged: %q vs %q, want %q", a.String(), b.String(), want)
	}
}

func TestAsyncWriterCloseIsIdempotent(t *testing.T) {
	buf := &bytes.Buffer{}
	w := newAsyncWriter([]io.Writer{buf}, 1024)

	if err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !strings.Contains(buf.String(), "line") {
		t.Fatalf("output missing queued line: %q", buf.String())
	}
}
