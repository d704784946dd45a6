package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/amirbrooks/taskport/internal/model"
)

// Serial dates outside this window are not treated as spreadsheet day counts.
const (
	MinSerialDate = 25000 // 1968-06-12
	MaxSerialDate = 50000 // 2036-11-21
)

var ErrInvalidDate = errors.New("invalid date")

// serialEpoch is day 0; serial 1 is 1900-01-01.
var serialEpoch = time.Date(1899, time.December, 31, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order; layouts without a zone parse as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1-2-2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon Jan 2 2006",
	"Mon, Jan 2, 2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	time.UnixDate,
	"2006",
}

var naturalDates = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDate coerces a loosely typed value into a calendar time.
//
// Numbers in [MinSerialDate, MaxSerialDate] (native or numeric strings) are spreadsheet
// serial dates. Other native numbers are Unix milliseconds. Strings are tried against a
// fixed layout list, then as a natural-language expression covering the whole input.
func ParseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	case time.Time:
		if x.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidDate)
		}
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
		}
		return ParseDate(*x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, x.String())
		}
		return dateFromNumber(f)
	case string:
		return parseDateString(x)
	}
	if f, ok := toFloat(v); ok {
		return dateFromNumber(f)
	}
	return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidDate, v)
}

func dateFromNumber(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, f)
	}
	if IsSerialDateNumber(f) {
		return SerialToDate(f), nil
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && IsSerialDateNumber(f) {
		return SerialToDate(f), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, ok := parseNaturalDate(s); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func parseNaturalDate(s string) (time.Time, bool) {
	r, err := naturalDates.Parse(s, model.Now())
	if err != nil || r == nil {
		return time.Time{}, false
	}
	if r.Index != 0 || len(strings.TrimSpace(r.Text)) != len(s) {
		return time.Time{}, false
	}
	return r.Time.UTC(), true
}

// IsSerialDateNumber reports whether f falls in the spreadsheet serial-date window.
func IsSerialDateNumber(f float64) bool {
	return f >= MinSerialDate && f <= MaxSerialDate
}

// SerialToDate converts a spreadsheet serial day count to a UTC time. Day 1 is
// 1900-01-01. Spreadsheets count a phantom 1900-02-29 as serial 60, so every serial
// after it is shifted back one day; serial 60 itself lands on 1900-03-01. The
// fractional part is the time of day.
func SerialToDate(serial float64) time.Time {
	days := math.Floor(serial)
	frac := serial - days
	if days > 60 {
		days--
	}
	t := serialEpoch.AddDate(0, 0, int(days))
	secs := math.Round(frac * 86400)
	return t.Add(time.Duration(secs) * time.Second)
}

// DateToSerial is the inverse of SerialToDate for dates on or after 1900-01-01.
func DateToSerial(t time.Time) float64 {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := math.Round(midnight.Sub(serialEpoch).Hours() / 24)
	if days >= 60 {
		days++
	}
	frac := t.Sub(midnight).Seconds() / 86400
	return days + frac
}

// FormatISO renders a time the way every codec writes timestamps.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
