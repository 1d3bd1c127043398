// Package periods parses the inattentive period descriptions returned by the
// analysis server.
package periods

import (
	"fmt"
	"regexp"
	"strconv"
)

// linePattern matches "From <number> sec to <number> sec" anywhere in a line.
var linePattern = regexp.MustCompile(`From (\d+(?:\.\d*)?|\.\d+) sec to (\d+(?:\.\d*)?|\.\d+) sec`)

// Period is a contiguous interval, in seconds, during which the subject was
// classified as not attentive.
type Period struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the length of the period in seconds.
func (p Period) Duration() float64 {
	return p.End - p.Start
}

// Valid reports whether the period is well ordered and non-negative.
func (p Period) Valid() bool {
	return p.Start >= 0 && p.End >= p.Start
}

// String renders the period the way the dashboard lists it, e.g. "From 12.50s to 18.00s".
func (p Period) String() string {
	return fmt.Sprintf("From %.2fs to %.2fs", p.Start, p.End)
}

// Parse extracts a period from a single "From A sec to B sec" line.
// It returns false when the line does not match.
func Parse(line string) (Period, bool) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Period{}, false
	}
	start, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Period{}, false
	}
	end, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

// ParseAll parses every line in order. Lines that do not match are skipped;
// dropped is the number of skipped lines.
func ParseAll(lines []string) (parsed []Period, dropped int) {
	parsed = make([]Period, 0, len(lines))
	for _, line := range lines {
		p, ok := Parse(line)
		if !ok {
			dropped++
			continue
		}
		parsed = append(parsed, p)
	}
	return parsed, dropped
}

// FromPairs converts structured [start, end] pairs. Pairs that do not have
// exactly two elements are skipped and counted in dropped.
func FromPairs(pairs [][]float64) (parsed []Period, dropped int) {
	parsed = make([]Period, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			dropped++
			continue
		}
		parsed = append(parsed, Period{Start: pair[0], End: pair[1]})
	}
	return parsed, dropped
}

// TotalDuration sums the durations of all periods.
func TotalDuration(ps []Period) float64 {
	var total float64
	for _, p := range ps {
		total += p.Duration()
	}
	return total
}
