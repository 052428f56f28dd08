// File: arena/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package arena

import (
	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-rt/api"
)

// Config sets the initial region size of an arena.
type Config struct {
	// Capacity is the size of the first region and the usage threshold that
	// triggers chain collapse on Reset.
	Capacity int `yaml:"capacity"`
}

// DefaultConfig returns a 64KiB arena configuration.
func DefaultConfig() Config {
	return Config{Capacity: 64 << 10}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return errors.Wrapf(api.ErrInvalidConfig, "arena: capacity %d", c.Capacity)
	}
	return nil
}
