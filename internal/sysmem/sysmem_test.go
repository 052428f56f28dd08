// File: internal/sysmem/sysmem_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sysmem

import (
	"testing"

	"github.com/momentics/hioload-rt/internal/fatal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocSmallUsesHeap(t *testing.T) {
	b := Alloc(128)
	assert.Len(t, b, 128)
	assert.False(t, Mapped(b))
	Release(b)
}

func TestAllocLargeMapped(t *testing.T) {
	count, bytes := Stats()
	b := Alloc(MapThreshold + 1)
	require.Len(t, b, MapThreshold+1)
	b[0], b[len(b)-1] = 1, 2
	for _, v := range b[1 : len(b)-1] {
		if v != 0 {
			t.Fatal("mapping not zeroed")
		}
	}
	if !Mapped(b) {
		t.Skip("anonymous mappings unsupported on this platform")
	}
	c, by := Stats()
	assert.Equal(t, count+1, c)
	assert.Greater(t, by, bytes)

	Release(b)
	assert.False(t, Mapped(b))
	c, by = Stats()
	assert.Equal(t, count, c)
	assert.Equal(t, bytes, by)
}

func TestAllocNegativeViolates(t *testing.T) {
	r, raised := fatal.Catch(func() { Alloc(-1) })
	require.True(t, raised)
	assert.Equal(t, fatal.ContractViolation, r.Kind)
}

func TestReleaseEmpty(t *testing.T) {
	Release(nil)
	Release([]byte{})
}
