package rag

import (
	"time"

	"gorm.io/datatypes"
)

// CorpusChunk is the SQL row backing the local vector store.
type CorpusChunk struct {
	ID         string         `gorm:"column:id;type:varchar(512);primaryKey" json:"id"`
	Source     string         `gorm:"column:source;type:text;not null;index" json:"source"`
	Page       int            `gorm:"column:page;not null" json:"page"`
	ChunkIndex int            `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Text       string         `gorm:"column:text;type:text;not null" json:"text"`
	Embedding  datatypes.JSON `gorm:"column:embedding;not null" json:"-"`
	// Position records insertion order; search ties are broken on it.
	Position  int64     `gorm:"column:position;not null;index" json:"position"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (CorpusChunk) TableName() string { return "corpus_chunk" }
