package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize is a data size in bytes written in configuration files as a
// human-readable string such as "10MB" or "512KiB".
type ByteSize int64

// ParseByteSize parses a human-readable data size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid data size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// String formats the size with SI units.
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.Bytes(uint64(b))
}

// UnmarshalYAML accepts either a size string or a plain byte count.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("data size must be a string or integer: %w", err)
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalYAML writes the size as a human-readable string when that string
// parses back to the same size, and as a byte count otherwise.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	s := b.String()
	if back, err := ParseByteSize(s); err == nil && back == b {
		return s, nil
	}
	return int64(b), nil
}
