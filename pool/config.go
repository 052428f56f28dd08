// File: pool/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/momentics/hioload-rt/api"
)

// Config tunes page sizing and page lifetime of the pooled allocator.
type Config struct {
	// MinPageLifetime is how long a fully free page with more than one slot
	// is kept before it is released.
	MinPageLifetime time.Duration `yaml:"minPageLifetime"`

	// MaxElementsPerPage is the slot count of a page for small elements.
	MaxElementsPerPage int `yaml:"maxElementsPerPage"`

	// ReducingBase is the element size above which pages shrink.
	ReducingBase int `yaml:"reducingBase"`

	// ReducingFactor scales the shrink per ReducingBase multiple.
	ReducingFactor int `yaml:"reducingFactor"`
}

// DefaultConfig returns the stock pooled allocator settings.
func DefaultConfig() Config {
	return Config{
		MinPageLifetime:    2 * time.Second,
		MaxElementsPerPage: 128,
		ReducingBase:       1024,
		ReducingFactor:     2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.MinPageLifetime < 0:
		return errors.Wrapf(api.ErrInvalidConfig, "pool: minPageLifetime %v", c.MinPageLifetime)
	case c.MaxElementsPerPage < 1:
		return errors.Wrapf(api.ErrInvalidConfig, "pool: maxElementsPerPage %d", c.MaxElementsPerPage)
	case c.ReducingBase < 1:
		return errors.Wrapf(api.ErrInvalidConfig, "pool: reducingBase %d", c.ReducingBase)
	case c.ReducingFactor < 1:
		return errors.Wrapf(api.ErrInvalidConfig, "pool: reducingFactor %d", c.ReducingFactor)
	}
	return nil
}
