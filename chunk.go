package featpack

const (
	// DefaultChunkSize is the default on-disk chunk budget in megabytes.
	DefaultChunkSize = 0.1

	// MinChunkSize is the smallest accepted chunk budget in megabytes
	// (8 KB). Smaller chunks degrade storage performance badly enough
	// that they are rejected outright.
	MinChunkSize = 0.008

	// minChunkBytes is MinChunkSize expressed in bytes.
	minChunkBytes = 8192

	// minLineRows is the row floor for identifier-sized datasets: a chunk
	// never holds fewer than 10 rows.
	minLineRows = 10

	// itemNameBytes estimates the byte length of an item identifier,
	// typically a 20-character file name.
	itemNameBytes = 20
)

// rowsPerChunk returns how many rows of the given byte width fit in one
// chunk of the given megabyte budget, floored so a chunk never drops below
// the 8 KB minimum.
func rowsPerChunk(bytesPerRow int, chunkMB float64) int {
	rows := int(chunkMB*1e6) / bytesPerRow
	floor := (minChunkBytes + bytesPerRow - 1) / bytesPerRow
	return max(rows, floor)
}

// linesPerChunk is the chunking policy for small per-item rows (identifiers,
// index offsets): at least 10 rows per chunk regardless of budget.
func linesPerChunk(bytesPerRow int, chunkMB float64) int {
	rows := int(chunkMB*1e6) / bytesPerRow
	return max(rows, minLineRows)
}
