package reader

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gregLibert/piv-reader/pkg/iso7816"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// TraceLog is the user facing log of one read. Every line carries the milliseconds elapsed
// since the read started: "[12ms][Reader] --> 00A4040009...".
type TraceLog struct {
	mu      sync.Mutex
	now     func() time.Time
	start   time.Time
	last    int64
	lines   []string
	onWrite func(string)
}

func newTraceLog(now func() time.Time, onWrite func(string)) *TraceLog {
	return &TraceLog{now: now, start: now(), onWrite: onWrite}
}

// Printf appends one timestamped line.
func (l *TraceLog) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	elapsed := l.now().Sub(l.start).Milliseconds()
	if elapsed < l.last {
		elapsed = l.last
	}
	l.last = elapsed
	line := fmt.Sprintf("[%dms]%s", elapsed, msg)
	l.lines = append(l.lines, line)
	onWrite := l.onWrite
	l.mu.Unlock()

	if onWrite != nil {
		onWrite(line)
	}
}

// Block appends every line of a multi-line text.
func (l *TraceLog) Block(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		l.Printf("%s", line)
	}
}

// Lines returns a copy of the lines written so far.
func (l *TraceLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// String returns the log text, one line per entry.
func (l *TraceLog) String() string {
	lines := l.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// clientTrace records every APDU the client exchanges, continuation and chaining included.
func (l *TraceLog) clientTrace() *iso7816.ClientTrace {
	return &iso7816.ClientTrace{
		Transmit: func(req []byte) {
			l.Printf("[Reader] --> %s", tlv.HexString(req))
		},
		TransmitResult: func(_, resp []byte, err error) {
			if err != nil {
				l.Printf("[Reader] <-- %v", err)
				return
			}
			l.Printf("[Reader] <-- %s", tlv.HexString(resp))
		},
	}
}
