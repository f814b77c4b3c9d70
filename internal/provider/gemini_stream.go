package provider

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultDataTimeout     = 30 * time.Second
	defaultMaxDataInterval = 120 * time.Second
	terminalTailWindow     = 64
)

// stallDetector wraps a Gemini streaming body per spec.md §4.3: a timer
// starts on open; no bytes within dataTimeout logs a warning; no bytes for
// maxInterval before a terminal marker ([DONE] or a finishReason field)
// marks the stream Truncated and logs a warning. It never injects bytes.
// Truncated is exposed through TruncationReporter; no caller in the gateway
// reads it, so the warning log is the only report of a truncation.
type stallDetector struct {
	inner ReadCloser

	dataTimeout time.Duration
	maxInterval time.Duration

	mu       sync.Mutex
	lastRead time.Time
	tail     []byte
	seenTerm bool

	warned    int32
	truncated int32

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newStallDetector(inner ReadCloser, dataTimeout, maxInterval time.Duration) *stallDetector {
	if dataTimeout <= 0 {
		dataTimeout = defaultDataTimeout
	}
	if maxInterval <= 0 {
		maxInterval = defaultMaxDataInterval
	}
	d := &stallDetector{
		inner:       inner,
		dataTimeout: dataTimeout,
		maxInterval: maxInterval,
		lastRead:    time.Now(),
		stopCh:      make(chan struct{}),
	}
	go d.watch()
	return d
}

func (d *stallDetector) Read(p []byte) (int, error) {
	n, err := d.inner.Read(p)
	if n > 0 {
		d.mu.Lock()
		d.lastRead = time.Now()
		d.tail = appendTail(d.tail, p[:n])
		if containsTerminalMarker(d.tail) {
			d.seenTerm = true
		}
		d.mu.Unlock()
	}
	return n, err
}

func (d *stallDetector) Close() error {
	d.stopOnce.Do(func() { close(d.stopCh) })
	return d.inner.Close()
}

// Truncated reports whether the stream stalled past maxInterval before a
// terminal marker was observed.
func (d *stallDetector) Truncated() bool {
	return atomic.LoadInt32(&d.truncated) == 1
}

func (d *stallDetector) watch() {
	ticker := time.NewTicker(d.dataTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.mu.Lock()
			elapsed := time.Since(d.lastRead)
			done := d.seenTerm
			d.mu.Unlock()

			if done {
				return
			}
			if elapsed >= d.maxInterval {
				if atomic.CompareAndSwapInt32(&d.truncated, 0, 1) {
					logrus.Warn("gemini stream: no data for longer than max_data_interval, marking truncated")
				}
				return
			}
			if elapsed >= d.dataTimeout && atomic.CompareAndSwapInt32(&d.warned, 0, 1) {
				logrus.Warn("gemini stream: no data received within data_timeout_seconds")
			}
		}
	}
}

func appendTail(tail, chunk []byte) []byte {
	combined := append(tail, chunk...)
	if len(combined) > terminalTailWindow {
		combined = combined[len(combined)-terminalTailWindow:]
	}
	out := make([]byte, len(combined))
	copy(out, combined)
	return out
}

func containsTerminalMarker(tail []byte) bool {
	return bytes.Contains(tail, []byte("[DONE]")) || bytes.Contains(tail, []byte("finishReason"))
}
