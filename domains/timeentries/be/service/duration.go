package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseDuration converts a free-form duration string into whole minutes.
// Accepted forms: "H:MM" (e.g. "1:30") and decimal hours (e.g. "1.5" or "2").
func ParseDuration(input string) (int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, fmt.Errorf("duration is required")
	}

	if hours, mins, ok := strings.Cut(trimmed, ":"); ok {
		h, err := strconv.Atoi(hours)
		if err != nil || h < 0 {
			return 0, fmt.Errorf("invalid duration %q", input)
		}
		m, err := strconv.Atoi(mins)
		if err != nil || m < 0 || m > 59 {
			return 0, fmt.Errorf("invalid duration %q", input)
		}
		total := h*60 + m
		if total <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return total, nil
	}

	decimal, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || decimal < 0 || math.IsInf(decimal, 0) || math.IsNaN(decimal) {
		return 0, fmt.Errorf("invalid duration %q", input)
	}
	total := int(math.Round(decimal * 60))
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

// DurationBetween computes the entry duration for a start/end pair in whole
// minutes, rounded, never below one.
func DurationBetween(start, end time.Time) int {
	minutes := int(math.Round(end.Sub(start).Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}
