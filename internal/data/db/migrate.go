package db

import (
	"gorm.io/gorm"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&query.Query{},
		&rag.CorpusChunk{},
	)
}
