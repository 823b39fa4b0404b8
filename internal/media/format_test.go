package media

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clipd/internal/models"
)

func TestFnum(t *testing.T) {
	assert.Equal(t, "0", fnum(0))
	assert.Equal(t, "10", fnum(10.0))
	assert.Equal(t, "2.5", fnum(2.5))
	assert.Equal(t, "0.1", fnum(0.1))
}

func TestFspeed(t *testing.T) {
	assert.Equal(t, "2.0", fspeed(2))
	assert.Equal(t, "1.0", fspeed(1))
	assert.Equal(t, "1.5", fspeed(1.5))
	assert.Equal(t, "0.25", fspeed(0.25))
}

func TestAtempoChainProductEqualsFactor(t *testing.T) {
	for _, speed := range []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 4, 8, 10} {
		chain, err := atempoChain(speed)
		require.NoError(t, err)

		product := 1.0
		for _, clause := range strings.Split(chain, ",") {
			value, err := strconv.ParseFloat(strings.TrimPrefix(clause, "atempo="), 64)
			require.NoError(t, err, "chain %q", chain)
			product *= value
		}
		assert.InDelta(t, speed, product, 1e-9, "chain %q", chain)
	}
}

func TestAtempoChainRejectsNonPositive(t *testing.T) {
	_, err := atempoChain(0)
	require.ErrorIs(t, err, models.ErrInvalidRequest)
	_, err = atempoChain(-2)
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestResolveEnd(t *testing.T) {
	assert.Equal(t, 30.0, resolveEnd(-1, 30))
	assert.Equal(t, 12.0, resolveEnd(12, 30))
	assert.Equal(t, 0.0, resolveEnd(0, 30))
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `C\:\\tmp\\it\'s.ass`, escapeFilterPath(`C:\tmp\it's.ass`))
}
