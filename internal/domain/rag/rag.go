package rag

import "fmt"

// Document is one page of extracted source text.
type Document struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Text   string `json:"text"`
}

// Chunk is a bounded span of a document page. ID is empty until ids are assigned.
type Chunk struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// ChunkID renders the stable "{source}:{page}:{chunk_index}" identifier.
func ChunkID(source string, page, chunkIndex int) string {
	return fmt.Sprintf("%s:%d:%d", source, page, chunkIndex)
}

// EmbeddedChunk pairs a chunk with its embedding vector for storage.
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

// Match is a chunk returned by similarity search with its score (higher is closer).
type Match struct {
	Chunk Chunk
	Score float64
}

// Prompt is the rendered model input plus the ids of the chunks placed in its context.
type Prompt struct {
	Text      string
	Context   string
	SourceIDs []string
}

// Answer is the generated text plus provenance.
type Answer struct {
	Text    string
	Sources []string
}
