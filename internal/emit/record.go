// Package emit renders per-second output records as the flat textual line
// protocol consumed by downstream tooling. The column layout, the token
// order and the slash-separated note rendering are a compatibility
// contract, not an implementation detail.
package emit

import (
	"fmt"
	"strings"
	"time"
)

// Header is the single header line preceding the record stream.
const Header = "time_hms,unix_s,bpm,note"

// Record is one output line: local time of emission, the unix second the
// tick represents (not the emission instant), the held bpm text, and the
// ordered diagnostic note tokens.
type Record struct {
	EmittedAt  time.Time
	UnixSecond int64
	BPM        string
	Notes      []string
}

// Line renders the record as a protocol line without the trailing newline.
func (r Record) Line() string {
	return fmt.Sprintf("%s,%d,%s,%s",
		r.EmittedAt.Format("15:04:05"),
		r.UnixSecond,
		r.BPM,
		strings.Join(r.Notes, "/"),
	)
}

// FormatValue renders a bpm or note value with exactly two fraction digits.
func FormatValue(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
