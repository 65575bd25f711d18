package sensor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/breath.report/internal/extract"
)

// MockSession replays frames from an NDJSON fixture, optionally pacing
// them like a live sensor. It backs the -dev mode and tests.
type MockSession struct {
	frames []extract.FrameResult
	delay  time.Duration
	next   int
	closed bool
}

// NewMockSession parses a fixture of newline-delimited JSON result bags.
// Blank lines are skipped; any other unparseable line is an error, since a
// broken fixture should fail loudly rather than silently drop frames.
func NewMockSession(fixture []byte) (*MockSession, error) {
	var frames []extract.FrameResult
	scan := bufio.NewScanner(bytes.NewReader(fixture))
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 {
			continue
		}
		frame, ok := parseLine(line)
		if !ok {
			return nil, fmt.Errorf("fixture line %d is not a frame result", lineNo)
		}
		frames = append(frames, frame)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return &MockSession{frames: frames}, nil
}

// SetFrameDelay makes Next pause before each frame, mimicking the
// sensor's update rate.
func (m *MockSession) SetFrameDelay(d time.Duration) { m.delay = d }

// Next returns the next fixture frame, or io.EOF once the fixture is
// exhausted. Running out of recorded frames is a normal end of replay,
// distinct from the live client's ErrSessionEnded.
func (m *MockSession) Next(ctx context.Context) (extract.FrameResult, error) {
	if m.closed || m.next >= len(m.frames) {
		return nil, io.EOF
	}
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := m.frames[m.next]
	m.next++
	return frame, nil
}

// Close ends the replay. Idempotent.
func (m *MockSession) Close() error {
	m.closed = true
	return nil
}
