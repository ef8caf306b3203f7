package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DateLayout is the on-disk date format for every ledger date column.
const DateLayout = "2006-01-02"

// Date is a civil calendar date. The zero value means "no date" and is
// written as an empty cell. A date read from a cell that was not in
// DateLayout (a timestamp, say) is written back as that cell text until it
// is replaced.
type Date struct {
	t   time.Time
	raw string
}

// NewDate returns the date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate accepts YYYY-MM-DD, or any value whose first ten characters are
// one (ISO timestamps, "2026-01-23 18:30"). Empty input yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, eris.Wrapf(err, "model: parse date %q", s)
	}
	return Date{t: t}, nil
}

// IsZero reports whether d holds no date.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	if d.IsZero() {
		return d
	}
	return Date{t: d.t.AddDate(0, 0, n)}
}

// AddMonths returns d shifted by n calendar months.
func (d Date) AddMonths(n int) Date {
	if d.IsZero() {
		return d
	}
	return Date{t: d.t.AddDate(0, n, 0)}
}

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// DaysUntil returns the number of days from d to o (negative when o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(math.Round(o.t.Sub(d.t).Hours() / 24))
}

// MaxDate returns the latest non-zero date, or the zero Date.
func MaxDate(ds ...Date) Date {
	var out Date
	for _, d := range ds {
		if !d.IsZero() && (out.IsZero() || d.After(out)) {
			out = d
		}
	}
	return out
}

func (d Date) MarshalText() ([]byte, error) {
	if d.raw != "" {
		return []byte(d.raw), nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText never fails: an unparsable cell becomes the zero Date and a
// warning is logged.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		zap.L().Warn("model: unparsable date, treating as empty", zap.String("value", string(b)))
		*d = Date{}
		return nil
	}
	if raw := string(b); raw != parsed.String() {
		parsed.raw = raw
	}
	*d = parsed
	return nil
}

// Count is a non-negative integer counter column.
type Count int

func (c Count) MarshalText() ([]byte, error) {
	return []byte(strconv.Itoa(int(c))), nil
}

// UnmarshalText falls back to 0 on garbage.
func (c *Count) UnmarshalText(b []byte) error {
	*c = Count(parseLenientInt(string(b), "count"))
	return nil
}

// Sats is an amount in satoshis.
type Sats int

func (s Sats) MarshalText() ([]byte, error) {
	return []byte(strconv.Itoa(int(s))), nil
}

func (s *Sats) UnmarshalText(b []byte) error {
	*s = Sats(parseLenientInt(string(b), "sats"))
	return nil
}

func parseLenientInt(raw, kind string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Counters written by hand sometimes carry a trailing ".0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 {
			zap.L().Warn("model: unparsable number, using 0",
				zap.String("kind", kind),
				zap.String("value", raw),
			)
			return 0
		}
		return int(f)
	}
	if n < 0 {
		return 0
	}
	return n
}

// Factor is an activity multiplier held in tenths (12 == 1.2x) so that
// bounty arithmetic stays in integers.
type Factor int

// FactorOne is the neutral multiplier.
const FactorOne Factor = 10

// Float64 returns the multiplier as a float.
func (f Factor) Float64() float64 { return float64(f) / 10 }

// Apply multiplies amount by f and floors the result.
func (f Factor) Apply(amount Sats) Sats {
	return Sats(int(amount) * int(f) / 10)
}

func (f Factor) String() string {
	return fmt.Sprintf("%d.%d", int(f)/10, int(f)%10)
}

func (f Factor) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText reads "1.2"-style values; garbage or empty becomes 1.0.
func (f *Factor) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*f = FactorOne
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		zap.L().Warn("model: unparsable activity factor, using 1.0", zap.String("value", s))
		*f = FactorOne
		return nil
	}
	*f = Factor(math.Round(v * 10))
	return nil
}

// YesNo is a boolean written as "yes"/"no".
type YesNo bool

func (y YesNo) MarshalText() ([]byte, error) {
	if y {
		return []byte("yes"), nil
	}
	return []byte("no"), nil
}

func (y *YesNo) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "yes", "y", "true", "1":
		*y = true
	default:
		*y = false
	}
	return nil
}

// Coordinate is a latitude or longitude that may be absent.
type Coordinate struct {
	Value float64
	Valid bool
}

// NewCoordinate returns a valid coordinate.
func NewCoordinate(v float64) Coordinate {
	return Coordinate{Value: v, Valid: true}
}

func (c Coordinate) String() string {
	if !c.Valid {
		return ""
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

func (c Coordinate) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Coordinate) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*c = Coordinate{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		zap.L().Warn("model: unparsable coordinate, treating as empty", zap.String("value", s))
		*c = Coordinate{}
		return nil
	}
	*c = NewCoordinate(v)
	return nil
}
