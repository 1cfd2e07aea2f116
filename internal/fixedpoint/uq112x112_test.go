package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(1), ether(100), new(big.Int).Set(MaxUint112)} {
		encoded, err := Encode(v)
		require.NoError(t, err)
		assert.Equal(t, 0, Decode(encoded).Cmp(v), "value %s", v)

		again, err := Encode(Decode(encoded))
		require.NoError(t, err)
		assert.Equal(t, 0, again.Cmp(encoded))
	}
}

func TestEncodeOverflow(t *testing.T) {
	_, err := Encode(new(big.Int).Add(MaxUint112, big.NewInt(1)))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Encode(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDivByZero(t *testing.T) {
	_, err := Div(Q112, big.NewInt(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestRatio(t *testing.T) {
	price, err := Ratio(ether(200), ether(100))
	require.NoError(t, err)
	assert.Equal(t, 0, price.Cmp(new(big.Int).Mul(big.NewInt(2), Q112)))
	assert.Equal(t, int64(2), Decode(price).Int64())

	half, err := Ratio(ether(1), ether(2))
	require.NoError(t, err)
	assert.Equal(t, 0, half.Cmp(new(big.Int).Rsh(Q112, 1)))
}

func TestDecodeTruncates(t *testing.T) {
	almostTwo := new(big.Int).Sub(new(big.Int).Mul(big.NewInt(2), Q112), big.NewInt(1))
	assert.Equal(t, int64(1), Decode(almostTwo).Int64())

	third, err := Div(Q112, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(0), Decode(third).Int64())
}
