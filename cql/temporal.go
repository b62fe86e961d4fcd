package cql

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Precision is the granularity of a temporal value or a calendar step.
type Precision int

const (
	PrecisionYear Precision = iota
	PrecisionMonth
	PrecisionWeek
	PrecisionDay
	PrecisionHour
	PrecisionMinute
	PrecisionSecond
	PrecisionMillisecond
)

var precisionNames = [...]string{"year", "month", "week", "day", "hour", "minute", "second", "millisecond"}

func (p Precision) String() string {
	if p < PrecisionYear || p > PrecisionMillisecond {
		return fmt.Sprintf("Precision(%d)", int(p))
	}
	return precisionNames[p]
}

// DateTimeIndex is the position of p among the DateTime components.
// Week shares the Day slot.
func (p Precision) DateTimeIndex() int {
	switch p {
	case PrecisionYear:
		return 0
	case PrecisionMonth:
		return 1
	case PrecisionWeek, PrecisionDay:
		return 2
	case PrecisionHour:
		return 3
	case PrecisionMinute:
		return 4
	case PrecisionSecond:
		return 5
	case PrecisionMillisecond:
		return 6
	}
	return -1
}

// TimeIndex is the position of p among the Time components, or -1 for
// precisions coarser than an hour.
func (p Precision) TimeIndex() int {
	if p < PrecisionHour || p > PrecisionMillisecond {
		return -1
	}
	return p.DateTimeIndex() - PrecisionHour.DateTimeIndex()
}

var dateTimeIndexPrecisions = [...]Precision{
	PrecisionYear, PrecisionMonth, PrecisionDay, PrecisionHour,
	PrecisionMinute, PrecisionSecond, PrecisionMillisecond,
}

func PrecisionFromDateTimeIndex(i int) (Precision, bool) {
	if i < 0 || i >= len(dateTimeIndexPrecisions) {
		return 0, false
	}
	return dateTimeIndexPrecisions[i], true
}

func PrecisionFromTimeIndex(i int) (Precision, bool) {
	if i < 0 || i > 3 {
		return 0, false
	}
	return PrecisionFromDateTimeIndex(i + PrecisionHour.DateTimeIndex())
}

// ParsePrecision maps a calendar or UCUM time unit to a Precision.
func ParsePrecision(unit string) (Precision, bool) {
	unit = strings.Trim(strings.TrimSpace(unit), "'")
	switch strings.ToLower(unit) {
	case "year", "years", "a":
		return PrecisionYear, true
	case "month", "months", "mo":
		return PrecisionMonth, true
	case "week", "weeks", "wk":
		return PrecisionWeek, true
	case "day", "days", "d":
		return PrecisionDay, true
	case "hour", "hours", "h":
		return PrecisionHour, true
	case "minute", "minutes", "min":
		return PrecisionMinute, true
	case "second", "seconds", "s":
		return PrecisionSecond, true
	case "millisecond", "milliseconds", "ms":
		return PrecisionMillisecond, true
	}
	return 0, false
}

// nominal lengths used to convert step counts between precisions
var precisionLength = [...]int64{
	PrecisionYear:        365 * 24 * 3600 * 1000,
	PrecisionMonth:       30 * 24 * 3600 * 1000,
	PrecisionWeek:        7 * 24 * 3600 * 1000,
	PrecisionDay:         24 * 3600 * 1000,
	PrecisionHour:        3600 * 1000,
	PrecisionMinute:      60 * 1000,
	PrecisionSecond:      1000,
	PrecisionMillisecond: 1,
}

func weeksToDays(weeks int64) int64 {
	return weeks * 7
}

// truncateToPrecision converts value steps of from into whole steps of the
// coarser precision to, e.g. 18 months into 1 year.
func truncateToPrecision(value int64, from, to Precision) int64 {
	factor := precisionLength[to] / precisionLength[from]
	if factor <= 1 {
		return value
	}
	return value / factor
}

const (
	DateFormatOnlyYear     = "2006"
	DateFormatUpToMonth    = "2006-01"
	DateFormatFull         = "2006-01-02"
	TimeFormatOnlyHour     = "15"
	TimeFormatUpToMinute   = "15:04"
	TimeFormatUpToSecond   = "15:04:05"
	TimeFormatFull         = "15:04:05.000"
	TimeZoneFormat         = "Z07:00"
	TimeFormatFullTZ       = TimeFormatFull + TimeZoneFormat
	TimeFormatUpToSecondTZ = TimeFormatUpToSecond + TimeZoneFormat
)

// Date is a calendar date with Year, Month or Day precision.
type Date struct {
	Value     time.Time
	Precision Precision
}

// NewDate builds a Date; components below p are ignored.
func NewDate(year, month, day int, p Precision) Date {
	if p < PrecisionMonth {
		month = 1
	}
	if p < PrecisionDay {
		day = 1
	}
	return Date{Value: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), Precision: p}
}

func ParseDate(s string) (Date, error) {
	ds := strings.TrimLeft(s, "@")
	formats := []struct {
		layout    string
		precision Precision
	}{
		{DateFormatOnlyYear, PrecisionYear},
		{DateFormatUpToMonth, PrecisionMonth},
		{DateFormatFull, PrecisionDay},
	}
	for _, f := range formats {
		if d, err := time.Parse(f.layout, ds); err == nil {
			return Date{Value: d, Precision: f.precision}, nil
		}
	}
	return Date{}, fmt.Errorf("invalid Date format: %s", s)
}

func (d Date) value() {}
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
func (d Date) String() string {
	switch d.Precision {
	case PrecisionYear:
		return d.Value.Format(DateFormatOnlyYear)
	case PrecisionMonth:
		return d.Value.Format(DateFormatUpToMonth)
	default:
		return d.Value.Format(DateFormatFull)
	}
}

// DateTime returns d as a DateTime at the same precision in loc.
func (d Date) DateTime(loc *time.Location) DateTime {
	t := d.Value
	return DateTime{Value: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), Precision: d.Precision}
}

// Time is a time of day, stored on 0000-01-01 UTC.
type Time struct {
	Value     time.Time
	Precision Precision
}

func NewTime(hour, minute, second, millisecond int, p Precision) Time {
	minute, second, millisecond = truncateTimeComponents(minute, second, millisecond, p)
	return Time{
		Value:     time.Date(0, 1, 1, hour, minute, second, millisecond*int(time.Millisecond), time.UTC),
		Precision: p,
	}
}

func truncateTimeComponents(minute, second, millisecond int, p Precision) (int, int, int) {
	if p < PrecisionMinute {
		minute = 0
	}
	if p < PrecisionSecond {
		second = 0
	}
	if p < PrecisionMillisecond {
		millisecond = 0
	}
	return minute, second, millisecond
}

func ParseTime(s string) (Time, error) {
	t, err := parseClock(strings.TrimLeft(s, "@T"), false)
	if err != nil {
		return Time{}, fmt.Errorf("invalid Time format: %s", s)
	}
	return t, nil
}

// parseClock parses hh[:mm[:ss[.fff]]] with an optional zone suffix.
func parseClock(ts string, withTZ bool) (Time, error) {
	clock, zone := ts, ""
	if withTZ {
		if idx := strings.IndexAny(ts, "Zz+-"); idx != -1 {
			clock, zone = ts[:idx], strings.ToUpper(ts[idx:])
		}
	}
	formats := []struct {
		layout    string
		precision Precision
	}{
		{TimeFormatOnlyHour, PrecisionHour},
		{TimeFormatUpToMinute, PrecisionMinute},
		{TimeFormatUpToSecond, PrecisionSecond},
		{"15:04:05.999999999", PrecisionMillisecond},
	}
	for _, f := range formats {
		if f.precision != PrecisionMillisecond && strings.Contains(clock, ".") {
			continue
		}
		t, err := time.Parse(f.layout, clock)
		if err != nil {
			continue
		}
		loc := time.UTC
		if zone != "" {
			z, err := time.Parse(TimeZoneFormat, zone)
			if err != nil {
				return Time{}, err
			}
			loc = z.Location()
		}
		ms := t.Nanosecond() / int(time.Millisecond)
		return Time{
			Value:     time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), ms*int(time.Millisecond), loc),
			Precision: f.precision,
		}, nil
	}
	return Time{}, fmt.Errorf("invalid time of day: %s", ts)
}

func (t Time) value() {}
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
func (t Time) String() string {
	return t.Value.Format(clockLayout(t.Precision))
}

func clockLayout(p Precision) string {
	switch p {
	case PrecisionHour:
		return TimeFormatOnlyHour
	case PrecisionMinute:
		return TimeFormatUpToMinute
	case PrecisionSecond:
		return TimeFormatUpToSecond
	default:
		return TimeFormatFull
	}
}

// DateTime is an instant with Year through Millisecond precision. The zone
// offset is carried by the time.Location of Value.
type DateTime struct {
	Value     time.Time
	Precision Precision
}

func NewDateTime(year, month, day, hour, minute, second, millisecond int, loc *time.Location, p Precision) DateTime {
	if loc == nil {
		loc = time.UTC
	}
	d := NewDate(year, month, day, min(p, PrecisionDay))
	if p < PrecisionHour {
		hour = 0
	}
	minute, second, millisecond = truncateTimeComponents(minute, second, millisecond, p)
	v := d.Value
	return DateTime{
		Value:     time.Date(v.Year(), v.Month(), v.Day(), hour, minute, second, millisecond*int(time.Millisecond), loc),
		Precision: p,
	}
}

func ParseDateTime(s string) (DateTime, error) {
	ds, ts, hasTime := strings.Cut(strings.TrimLeft(s, "@"), "T")
	d, err := ParseDate(ds)
	if err != nil {
		return DateTime{}, fmt.Errorf("invalid DateTime format (date part): %s", s)
	}
	if !hasTime || ts == "" {
		return DateTime{Value: d.Value, Precision: d.Precision}, nil
	}
	if d.Precision != PrecisionDay {
		return DateTime{}, fmt.Errorf("invalid DateTime format (time after partial date): %s", s)
	}
	t, err := parseClock(ts, true)
	if err != nil {
		return DateTime{}, fmt.Errorf("invalid DateTime format (time part): %s", s)
	}
	dv, tv := d.Value, t.Value
	return DateTime{
		Value:     time.Date(dv.Year(), dv.Month(), dv.Day(), tv.Hour(), tv.Minute(), tv.Second(), tv.Nanosecond(), tv.Location()),
		Precision: t.Precision,
	}, nil
}

func (dt DateTime) value() {}
func (dt DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}
func (dt DateTime) String() string {
	var ds, ts string
	switch dt.Precision {
	case PrecisionYear:
		ds = dt.Value.Format(DateFormatOnlyYear)
	case PrecisionMonth:
		ds = dt.Value.Format(DateFormatUpToMonth)
	case PrecisionDay:
		ds = dt.Value.Format(DateFormatFull)
	default:
		ds = dt.Value.Format(DateFormatFull)
		ts = dt.Value.Format(clockLayout(dt.Precision) + TimeZoneFormat)
	}
	return fmt.Sprintf("%sT%s", ds, ts)
}

// OffsetHours returns the zone offset in (possibly fractional) hours.
func (dt DateTime) OffsetHours() Decimal {
	_, offset := dt.Value.Zone()
	var res apd.Decimal
	_, _ = defaultAPDContext.Quo(&res, decimalOf(int64(offset)), decimalOf(3600))
	var reduced apd.Decimal
	reduced.Reduce(&res)
	if reduced.Exponent > 0 {
		reduced.Set(decimalOf(int64(offset / 3600)))
	}
	return Decimal{Value: &reduced}
}

// components returns year, month, day, hour, minute, second and millisecond.
func components(t time.Time) [7]int {
	return [7]int{
		t.Year(), int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond() / int(time.Millisecond),
	}
}

// compareComponents compares from the component at index from down to the
// coarser of both precisions. ok is false when all shared components are
// equal but the precisions differ.
func compareComponents(a, b time.Time, from int, pa, pb Precision) (cmp int, ok bool) {
	ca, cb := components(a), components(b)
	ia, ib := pa.DateTimeIndex(), pb.DateTimeIndex()
	for i := from; i <= min(ia, ib); i++ {
		switch {
		case ca[i] < cb[i]:
			return -1, true
		case ca[i] > cb[i]:
			return 1, true
		}
	}
	if ia != ib {
		return 0, false
	}
	return 0, true
}

func compareTemporal(l, r Value) (cmp int, ok bool, matched bool) {
	switch l := l.(type) {
	case Date:
		switch r := r.(type) {
		case Date:
			cmp, ok = compareComponents(l.Value, r.Value, 0, l.Precision, r.Precision)
			return cmp, ok, true
		case DateTime:
			return compareDateTimes(l.DateTime(r.Value.Location()), r)
		}
	case DateTime:
		switch r := r.(type) {
		case DateTime:
			return compareDateTimes(l, r)
		case Date:
			return compareDateTimes(l, r.DateTime(l.Value.Location()))
		}
	case Time:
		if r, isTime := r.(Time); isTime {
			cmp, ok = compareComponents(l.Value, r.Value, PrecisionHour.DateTimeIndex(), l.Precision, r.Precision)
			return cmp, ok, true
		}
	}
	return 0, false, false
}

func compareDateTimes(l, r DateTime) (int, bool, bool) {
	cmp, ok := compareComponents(l.Value, r.Value.In(l.Value.Location()), 0, l.Precision, r.Precision)
	return cmp, ok, true
}

// temporalPrecision returns the declared precision of a temporal value.
func temporalPrecision(v Value) (Precision, bool) {
	switch v := v.(type) {
	case Date:
		return v.Precision, true
	case Time:
		return v.Precision, true
	case DateTime:
		return v.Precision, true
	}
	return 0, false
}

// addQuantityToTemporal applies sign * q to t. The step count is the
// truncated value of q, converted to the declared precision of t when the
// unit is finer than that precision.
func addQuantityToTemporal(op string, t Value, q Quantity, sign int64) (Value, error) {
	unit, ok := ParsePrecision(q.Unit)
	if !ok {
		return nil, invalidTemporalArgument(op, t, q)
	}
	precision, _ := temporalPrecision(t)

	var integ, frac apd.Decimal
	q.Value.Value.Modf(&integ, &frac)
	step, err := integ.Int64()
	if err != nil {
		return nil, fmt.Errorf("invalid quantity value for temporal arithmetic: %w", err)
	}

	if _, isTime := t.(Time); isTime {
		if unit.TimeIndex() < 0 {
			return nil, invalidTemporalArgument(op, t, q)
		}
	} else if unit == PrecisionWeek {
		step = weeksToDays(step)
		unit = PrecisionDay
	}

	if precision.DateTimeIndex() < unit.DateTimeIndex() {
		step = truncateToPrecision(step, unit, precision)
		unit = precision
	}
	step *= sign

	switch t := t.(type) {
	case Date:
		return Date{Value: stepCalendar(t.Value, step, unit), Precision: t.Precision}, nil
	case DateTime:
		return DateTime{Value: stepCalendar(t.Value, step, unit), Precision: t.Precision}, nil
	case Time:
		v := stepCalendar(t.Value, step, unit)
		return Time{
			Value:     time.Date(0, 1, 1, v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC),
			Precision: t.Precision,
		}, nil
	}
	return nil, invalidTemporalArgument(op, t, q)
}

func invalidTemporalArgument(op string, t Value, q Quantity) error {
	return &InvalidOperatorArgumentError{
		Expected: fmt.Sprintf("%[1]s(Date, Quantity), %[1]s(DateTime, Quantity) or %[1]s(Time, Quantity) with a time-valued unit", op),
		Found:    fmt.Sprintf("%s(%s, Quantity '%s')", op, TypeName(t), q.Unit),
	}
}

// stepCalendar adds n units to t. Year and month steps land on the last day
// of the target month when the original day does not exist there.
func stepCalendar(t time.Time, n int64, unit Precision) time.Time {
	switch unit {
	case PrecisionYear:
		return clampToMonthEnd(t, t.AddDate(int(n), 0, 0))
	case PrecisionMonth:
		return clampToMonthEnd(t, t.AddDate(0, int(n), 0))
	case PrecisionWeek:
		return t.AddDate(0, 0, int(weeksToDays(n)))
	case PrecisionDay:
		return t.AddDate(0, 0, int(n))
	case PrecisionHour:
		return t.Add(time.Duration(n) * time.Hour)
	case PrecisionMinute:
		return t.Add(time.Duration(n) * time.Minute)
	case PrecisionSecond:
		return t.Add(time.Duration(n) * time.Second)
	default:
		return t.Add(time.Duration(n) * time.Millisecond)
	}
}

func clampToMonthEnd(orig, result time.Time) time.Time {
	if result.Day() < orig.Day() {
		return result.AddDate(0, 0, -result.Day())
	}
	return result
}
