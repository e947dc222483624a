package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var errInvalidParam = errors.New("invalid_param")

type timeBound int

const (
	rangeStart timeBound = iota
	rangeEnd
)

// lenientInt reads an optional numeric query value; anything unparseable
// yields 0 so pagination falls back to its defaults.
func lenientInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

// paymentIDParam reads a billing history entry id from the path.
func paymentIDParam(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, errInvalidParam
	}
	return id, nil
}

// timeQuery parses a from/to filter. Full RFC3339 timestamps pass through;
// a bare YYYY-MM-DD covers the whole UTC day, so "to=2026-05-01" includes
// entries written that evening.
func timeQuery(raw string, bound timeBound) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, errInvalidParam
	}
	if bound == rangeEnd {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}
