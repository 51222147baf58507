// Package clock issues and normalises the logical timestamps that drive
// last-write-wins arbitration.
//
// Every timestamp crossing a boundary is kept in one canonical textual form,
// UTC with millisecond precision and fixed width:
//
//	2024-05-01T10:00:00.000Z
//
// In that form byte-wise string comparison equals chronological comparison,
// so stores can order and compare timestamps without parsing them.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/common"
)

// Layout is the canonical timestamp layout.
const Layout = "2006-01-02T15:04:05.000Z"

// Epoch is the canonical form of the Unix epoch; it is the initial pull
// watermark.
const Epoch = "1970-01-01T00:00:00.000Z"

// Format renders t in canonical form.
func Format(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(Layout)
}

// Parse accepts any RFC 3339 timestamp and returns it converted to UTC and
// truncated to milliseconds.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", common.ErrInvalidTimestamp, s)
	}
	t = t.UTC().Truncate(time.Millisecond)
	if y := t.Year(); y < 0 || y > 9999 {
		return time.Time{}, fmt.Errorf("%w: %q out of range", common.ErrInvalidTimestamp, s)
	}
	return t, nil
}

// Normalize returns the canonical form of s. Values that are not RFC 3339
// timestamps fail with an error wrapping common.ErrValidation.
func Normalize(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.Format(Layout), nil
}

// Compare orders two canonical timestamps: -1 if a is older, 0 if equal,
// +1 if a is newer.
func Compare(a, b string) int {
	return strings.Compare(a, b)
}

// Oracle hands out strictly increasing canonical timestamps, even when the
// wall clock stalls or steps backwards. One Oracle should serve the whole
// process.
type Oracle struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewOracle returns an Oracle reading the system clock.
func NewOracle() *Oracle {
	return NewOracleWithSource(time.Now)
}

// NewOracleWithSource returns an Oracle reading now. Tests inject fixed or
// stepping sources through it.
func NewOracleWithSource(now func() time.Time) *Oracle {
	return &Oracle{now: now}
}

// Now issues the next timestamp. It is the later of the wall clock and one
// millisecond after the previously issued or observed timestamp.
func (o *Oracle) Now() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	t := o.now().UTC().Truncate(time.Millisecond)
	if !t.After(o.last) {
		t = o.last.Add(time.Millisecond)
	}
	o.last = t
	return t.Format(Layout)
}

// Observe records a timestamp seen from another replica so that edits issued
// afterwards sort after it. Invalid values are ignored.
func (o *Oracle) Observe(ts string) {
	t, err := Parse(ts)
	if err != nil {
		return
	}
	o.mu.Lock()
	if t.After(o.last) {
		o.last = t
	}
	o.mu.Unlock()
}
