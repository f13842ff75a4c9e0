package tape

import "fmt"

// ValidationError flags one integrity violation on one bar.
type ValidationError struct {
	Index int    `json:"index"`
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("bar %d %s: %s", e.Index, e.Field, e.Msg)
}

// Validate runs the bar-integrity checks and returns every violation in bar
// order: positive OHLC, non-negative volume, low <= open,close <= high, and
// start-timestamp contiguity at the given interval.
func Validate(bars []Bar, intervalMS int64) []ValidationError {
	var errs []ValidationError
	add := func(i int, field, format string, args ...any) {
		errs = append(errs, ValidationError{Index: i, Field: field, Msg: fmt.Sprintf(format, args...)})
	}
	for i, b := range bars {
		for _, pf := range []struct {
			name string
			v    float64
		}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
			if !(pf.v > 0) {
				add(i, pf.name, "price must be positive, got %v", pf.v)
			}
		}
		if !(b.Volume >= 0) {
			add(i, "volume", "volume must be non-negative, got %v", b.Volume)
		}
		if b.Open < b.Low || b.Open > b.High {
			add(i, "open", "open %v outside [low %v, high %v]", b.Open, b.Low, b.High)
		}
		if b.Close < b.Low || b.Close > b.High {
			add(i, "close", "close %v outside [low %v, high %v]", b.Close, b.Low, b.High)
		}
		if i >= 1 {
			want := bars[i-1].StartTSMS + intervalMS
			if b.StartTSMS != want {
				add(i, "bar_start_ts_ms", "expected %d, got %d", want, b.StartTSMS)
			}
		}
	}
	return errs
}

// ErrorsByIndex keeps the first validation error per bar index, for fast
// window invalidation lookups.
func ErrorsByIndex(errs []ValidationError) map[int]ValidationError {
	m := make(map[int]ValidationError, len(errs))
	for _, e := range errs {
		if _, ok := m[e.Index]; !ok {
			m[e.Index] = e
		}
	}
	return m
}
