package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusRange is an inclusive range of HTTP status codes. A single code has Min == Max.
type StatusRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type StatusRanges []StatusRange

var DefaultSuccessCodes = StatusRanges{{Min: 200, Max: 399}}

// Contains reports whether code falls in any of the ranges.
func (rs StatusRanges) Contains(code int) bool {
	for _, r := range rs {
		if code >= r.Min && code <= r.Max {
			return true
		}
	}
	return false
}

func (rs StatusRanges) String() string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.Min == r.Max {
			parts = append(parts, strconv.Itoa(r.Min))
			continue
		}
		parts = append(parts, fmt.Sprintf("%d-%d", r.Min, r.Max))
	}
	return strings.Join(parts, ",")
}

// ParseStatusRanges parses entries like "200", "200-299" or "204,301-308".
func ParseStatusRanges(specs []string) (StatusRanges, error) {
	var out StatusRanges
	for _, spec := range specs {
		for _, part := range strings.Split(spec, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			r, err := parseStatusRange(part)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func parseStatusRange(s string) (StatusRange, error) {
	lo, hi, isRange := strings.Cut(s, "-")
	min, err := parseStatusCode(lo)
	if err != nil {
		return StatusRange{}, err
	}
	if !isRange {
		return StatusRange{Min: min, Max: min}, nil
	}
	max, err := parseStatusCode(hi)
	if err != nil {
		return StatusRange{}, err
	}
	if max < min {
		return StatusRange{}, fmt.Errorf("status range %q: upper bound below lower bound", s)
	}
	return StatusRange{Min: min, Max: max}, nil
}

func parseStatusCode(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("status code %q: %w", s, err)
	}
	if n < 100 || n > 599 {
		return 0, fmt.Errorf("status code %d outside 100..599", n)
	}
	return n, nil
}
