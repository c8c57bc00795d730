package handlers

import (
	"errors"
	"strconv"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var errInvalidPagination = errors.New("page and limit must be positive integers")

// parsePaginationParams reads ?page= and ?limit=. Blank values take the
// defaults and limit is capped at maxPageLimit.
func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page, err := positiveOr(pageStr, 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := positiveOr(limitStr, defaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	return page, min(limit, maxPageLimit), nil
}

func positiveOr(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, errInvalidPagination
	}
	return n, nil
}
