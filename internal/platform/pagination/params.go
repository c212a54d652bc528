// Package pagination parses the limit query parameter shared by list endpoints.
package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultMaxLimit caps any limit when Options.Max is unset.
const DefaultMaxLimit = 100

// ErrInvalidLimit reports a limit that is not a positive integer.
var ErrInvalidLimit = errors.New("pagination: invalid limit")

// Options configure Limit for one endpoint.
type Options struct {
	Default int
	Max     int
}

// Limit reads ?limit=. A missing value yields the default; values above the maximum are clamped.
func Limit(values url.Values, opts Options) (int, error) {
	ceiling := opts.Max
	if ceiling <= 0 {
		ceiling = DefaultMaxLimit
	}
	def := opts.Default
	if def <= 0 || def > ceiling {
		def = ceiling
	}

	raw := strings.TrimSpace(values.Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidLimit, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidLimit)
	}
	if n > ceiling {
		n = ceiling
	}
	return n, nil
}

// Clamp applies Options to an already-parsed limit, treating non-positive values as unset.
func Clamp(n int, opts Options) int {
	ceiling := opts.Max
	if ceiling <= 0 {
		ceiling = DefaultMaxLimit
	}
	switch {
	case n <= 0:
		if opts.Default > 0 && opts.Default <= ceiling {
			return opts.Default
		}
		return ceiling
	case n > ceiling:
		return ceiling
	}
	return n
}
