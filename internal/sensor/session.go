// Package sensor provides the session link to the breathing estimator: a
// line-oriented JSON stream of per-frame result bags over a TCP socket or
// a UART link, plus a mock session replaying fixture frames for dev runs
// and tests. The estimator itself is an external collaborator; this
// package only manages the session lifecycle and frame fetch.
package sensor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/breath.report/internal/extract"
	"github.com/banshee-data/breath.report/internal/monitoring"
)

// SessionConfig carries the parameters forwarded to the estimator during
// session setup.
type SessionConfig struct {
	// Host is the exploration server address, host or host:port.
	Host string
	// RangeStart and RangeEnd bound the measured range window in meters.
	RangeStart float64
	RangeEnd   float64
	// UpdateRate is the sensor frame rate in Hz.
	UpdateRate float64
	// DFTLength is the estimator's DFT length.
	DFTLength int
}

// DefaultPort is the exploration server's stream port.
const DefaultPort = "6110"

// ErrSessionEnded reports a live session whose stream closed without an
// explicit stop: the sensor dropped the link mid-recording. Unlike a
// fixture running out of frames, this is a failure the caller must
// surface.
var ErrSessionEnded = errors.New("sensor session ended mid-stream")

// Session is the external frame source. Next is the frame loop's only
// blocking point and must return promptly on context cancellation. Close
// stops the stream and releases the link; it is idempotent and does not
// error on an already-dead session.
type Session interface {
	Next(ctx context.Context) (extract.FrameResult, error)
	Close() error
}

// envelope is one line of the session protocol in either direction.
type envelope struct {
	Cmd           string         `json:"cmd,omitempty"`
	RangeInterval []float64      `json:"range_interval,omitempty"`
	UpdateRate    float64        `json:"update_rate,omitempty"`
	DFTLength     int            `json:"n_dft,omitempty"`
	Status        string         `json:"status,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
}

// Client streams result bags from an estimator over any line-oriented
// byte link. A reader goroutine owns the blocking reads so Next can
// select on the context; this keeps interrupt latency independent of the
// sensor's frame rate.
type Client struct {
	link io.ReadWriteCloser

	frames chan extract.FrameResult
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the exploration host over TCP, configures the session
// and starts streaming. A bare host gets the default stream port.
func Dial(cfg SessionConfig) (*Client, error) {
	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sensor at %s: %w", addr, err)
	}
	return newClient(conn, cfg)
}

// newClient performs session setup on an open link and starts the reader.
func newClient(link io.ReadWriteCloser, cfg SessionConfig) (*Client, error) {
	c := &Client{
		link:   link,
		frames: make(chan extract.FrameResult),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	setup := envelope{
		Cmd:           "setup",
		RangeInterval: []float64{cfg.RangeStart, cfg.RangeEnd},
		UpdateRate:    cfg.UpdateRate,
		DFTLength:     cfg.DFTLength,
	}
	if err := c.send(setup); err != nil {
		link.Close()
		return nil, fmt.Errorf("session setup failed: %w", err)
	}
	if err := c.send(envelope{Cmd: "start_streaming"}); err != nil {
		link.Close()
		return nil, fmt.Errorf("failed to start streaming: %w", err)
	}

	go c.monitor()
	return c, nil
}

func (c *Client) send(e envelope) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = c.link.Write(append(b, '\n'))
	return err
}

// monitor reads lines from the link and feeds parsed frames to the frames
// channel. The blocking scan lives here so Next can await frames and
// context cancellation together.
func (c *Client) monitor() {
	defer close(c.frames)
	scan := bufio.NewScanner(c.link)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scan.Scan() {
		frame, ok := parseLine(scan.Bytes())
		if !ok {
			continue
		}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
	if err := scan.Err(); err != nil {
		c.errs <- err
	}
}

// parseLine turns one protocol line into a frame result. Frames arrive
// either as {"result": {...}} envelopes or as bare result objects; status
// acknowledgements and unparseable lines are skipped.
func parseLine(line []byte) (extract.FrameResult, bool) {
	var env struct {
		Status string         `json:"status"`
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		monitoring.Logger().Debug().Str("line", string(line)).Msg("skipping unparseable frame line")
		return nil, false
	}
	if env.Result != nil {
		return extract.FrameResult(env.Result), true
	}
	if env.Status != "" {
		monitoring.Logger().Debug().Str("status", env.Status).Msg("session status")
		return nil, false
	}

	var bag map[string]any
	if err := json.Unmarshal(line, &bag); err != nil || len(bag) == 0 {
		return nil, false
	}
	return extract.FrameResult(bag), true
}

// Next returns the next frame, blocking until one arrives, the stream
// dies, or the context is cancelled.
func (c *Client) Next(ctx context.Context) (extract.FrameResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-c.errs:
		return nil, fmt.Errorf("sensor stream failed: %w", err)
	case frame, ok := <-c.frames:
		if !ok {
			select {
			case err := <-c.errs:
				return nil, fmt.Errorf("sensor stream failed: %w", err)
			default:
			}
			return nil, ErrSessionEnded
		}
		return frame, nil
	}
}

// Close sends the stop command on a best-effort basis and closes the
// link. Safe to call more than once and on a session that already died.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		// The link may already be gone; stopping is best effort and must
		// not surface an error on an inoperative session.
		_ = c.send(envelope{Cmd: "stop_streaming"})
		c.closeErr = c.link.Close()
	})
	return c.closeErr
}
