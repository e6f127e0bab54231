//go:build unix

package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMapsZeroedRegion(t *testing.T) {
	r, err := New(4*4096, 4096, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })

	require.Equal(t, 4*4096, r.Len())
	for i := 0; i < r.Len(); i += 4096 {
		require.Zero(t, r.Bytes()[i], "page %d not zeroed", i/4096)
	}

	// Writable across the full range.
	r.Bytes()[0] = 0xAB
	r.Bytes()[r.Len()-1] = 0xCD
	require.Equal(t, byte(0xAB), r.Bytes()[0])
	require.Equal(t, byte(0xCD), r.Bytes()[r.Len()-1])
}

func TestNewRejectsBadSize(t *testing.T) {
	_, err := New(0, 4096, Options{})
	require.Error(t, err)

	_, err = New(4097, 4096, Options{})
	require.Error(t, err)
}

func TestCloseTwice(t *testing.T) {
	r, err := New(4096, 4096, Options{})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.Nil(t, r.Bytes())
}
