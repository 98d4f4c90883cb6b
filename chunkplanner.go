package quizstream

const (
	// MaxChunkSize caps the questions requested per streaming call. The endpoint
	// rejects larger list requests on its own.
	MaxChunkSize = 5

	// MaxTotal caps a single bulk generation request
	MaxTotal = 100
)

// PlanChunks divides total into consecutive ranges of at most chunkSize positions.
// Only the last chunk may be smaller. A chunkSize <= 0 uses MaxChunkSize.
func PlanChunks(total, chunkSize int) []Chunk {
	if total < 1 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = MaxChunkSize
	}

	chunks := make([]Chunk, 0, (total+chunkSize-1)/chunkSize)
	for start := 1; start <= total; start += chunkSize {
		end := min(start+chunkSize-1, total)
		chunks = append(chunks, Chunk{Start: start, End: end, Size: end - start + 1})
	}
	return chunks
}

// Position returns the 1-based absolute position of the k-th question (1-based) of the chunk
func (c Chunk) Position(k int) int {
	return c.Start + k - 1
}

// GlobalIndex returns the 0-based slot of the k-th question (1-based) of the chunk
func (c Chunk) GlobalIndex(k int) int {
	return c.Position(k) - 1
}
