package database

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigIntValue(t *testing.T) {
	v, err := NewBigInt(big.NewInt(5_000_000)).Value()
	require.NoError(t, err)
	assert.Equal(t, "5000000", v)

	var nilBig *BigInt
	v, err = nilBig.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBigIntScan(t *testing.T) {
	b := Zero()
	require.NoError(t, b.Scan("123456789012345678901234567890"))
	assert.Equal(t, "123456789012345678901234567890", b.String())

	b = Zero()
	require.NoError(t, b.Scan([]byte("42")))
	assert.Equal(t, "42", b.String())

	b = Zero()
	require.NoError(t, b.Scan(int64(7)))
	assert.Equal(t, "7", b.String())

	assert.Error(t, Zero().Scan("not a number"))
	assert.Error(t, Zero().Scan(3.14))
}

func TestBigIntAdd(t *testing.T) {
	b := Zero()
	sum := b.Add(big.NewInt(10)).Add(big.NewInt(32))
	assert.Equal(t, "42", sum.String())
	// The receiver stays untouched.
	assert.Equal(t, "0", b.String())

	var nilBig *BigInt
	assert.Equal(t, "5", nilBig.Add(big.NewInt(5)).String())
	assert.Equal(t, "0", nilBig.String())
}
