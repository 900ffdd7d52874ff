package chunker

import "github.com/marr05/RAG-TO-AWS/internal/domain/rag"

// AssignIDs numbers chunks within each run of the same (source, page), in input order.
// The index restarts at 0 whenever the key changes, so reordering the input changes the ids.
func AssignIDs(chunks []rag.Chunk) []rag.Chunk {
	out := make([]rag.Chunk, len(chunks))
	lastKey := ""
	index := 0
	for i, c := range chunks {
		key := rag.ChunkID(c.Source, c.Page, 0)
		if i > 0 && key == lastKey {
			index++
		} else {
			index = 0
		}
		lastKey = key
		c.ChunkIndex = index
		c.ID = rag.ChunkID(c.Source, c.Page, index)
		out[i] = c
	}
	return out
}
