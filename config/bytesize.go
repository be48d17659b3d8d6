package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ByteSize is a byte count written in config files in human-readable form
// ("150KiB", "100MB", "2048").
type ByteSize uint64

// ParseByteSize parses a human-readable byte count.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// String renders the size with binary units.
func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Int64 returns the size as an int64 for engine options.
func (b ByteSize) Int64() int64 { return int64(b) }

// MarshalYAML writes the size in its human-readable form.
func (b ByteSize) MarshalYAML() (any, error) { return b.String(), nil }
