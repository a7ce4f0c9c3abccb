package featpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowsPerChunk(t *testing.T) {
	// 0.1 MB of 104-byte rows (13 float64 columns).
	assert.Equal(t, 961, rowsPerChunk(13*8, 0.1))

	// Tiny budgets floor at 8 KB worth of rows.
	assert.Equal(t, 1024, rowsPerChunk(8, 0.008))
	assert.Equal(t, 8192/104+1, rowsPerChunk(104, 0.008))

	// Wide rows still get at least the 8 KB floor.
	assert.Equal(t, 1, rowsPerChunk(10_000, 0.008))
}

func TestLinesPerChunk(t *testing.T) {
	assert.Equal(t, 5000, linesPerChunk(itemNameBytes, 0.1))

	// Never below 10 rows, whatever the budget.
	assert.Equal(t, minLineRows, linesPerChunk(1_000_000, 0.008))
}
