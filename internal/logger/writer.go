package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter decouples log formatting from sink I/O. Formatted lines are
// queued and a single goroutine fans them out to every sink, so a slow log
// file cannot stall message handling.
type asyncWriter struct {
	lines chan []byte
	syncs chan chan error

	closeOnce sync.Once
	drained   chan struct{}

	mu    sync.Mutex
	sinks []*bufio.Writer
	fail  error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 256),
		syncs:   make(chan chan error),
		drained: make(chan struct{}),
	}
	for _, sink := range writers {
		if sink == nil {
			continue
		}
		w.sinks = append(w.sinks, bufio.NewWriterSize(sink, bufSize))
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.flushSinks()
				close(w.drained)
				return
			}
			if len(line) > 0 {
				w.fanOut(line)
			}
		case ack := <-w.syncs:
			ack <- w.flushSinks()
		}
	}
}

// Write queues one formatted line. When the queue is full it blocks instead
// of dropping output.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush forces buffered output through to every sink and waits for it.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.syncs <- ack
	return <-ack
}

// Close drains the queue, flushes the sinks, and reports the first write
// error encountered. Safe to call more than once.
func (w *asyncWriter) Close() error {
	w.closeOnce.Do(func() { close(w.lines) })
	<-w.drained
	return w.err()
}

func (w *asyncWriter) fanOut(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			w.setFailLocked(err)
			return
		}
		if err := sink.Flush(); err != nil {
			w.setFailLocked(err)
			return
		}
	}
}

func (w *asyncWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fail
}

func (w *asyncWriter) setFailLocked(err error) {
	if w.fail == nil {
		w.fail = err
	}
}
