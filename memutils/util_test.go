package memutils_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
)

func TestIsPow2(t *testing.T) {
	for _, number := range []int{1, 2, 64, 1024, 1 << 20} {
		require.True(t, memutils.IsPow2(number), "%d", number)
		require.NoError(t, memutils.CheckPow2(number, "number"))
	}

	for _, number := range []int{-4, 0, 3, 100, 1000} {
		require.False(t, memutils.IsPow2(number), "%d", number)
		require.ErrorIs(t, memutils.CheckPow2(number, "number"), memutils.PowerOfTwoError)
	}
}

func TestCheckPositive(t *testing.T) {
	require.NoError(t, memutils.CheckPositive(1, "size"))

	err := memutils.CheckPositive(-5, "size")
	require.ErrorIs(t, err, memutils.ErrInvalidSize)
	require.ErrorContains(t, err, "size is -5")

	require.ErrorIs(t, memutils.CheckPositive(uint(0), "size"), memutils.ErrInvalidSize)
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, 0, memutils.CeilDiv(0, 100))
	require.Equal(t, 1, memutils.CeilDiv(1, 100))
	require.Equal(t, 1, memutils.CeilDiv(100, 100))
	require.Equal(t, 3, memutils.CeilDiv(250, 100))
	require.Equal(t, math.MaxInt/100+1, memutils.CeilDiv(math.MaxInt, 100))
	require.Equal(t, math.MaxInt, memutils.CeilDiv(math.MaxInt, 1))
}
