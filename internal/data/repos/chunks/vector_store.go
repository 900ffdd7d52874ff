package chunks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// VectorStore keeps chunk embeddings in a SQL table and ranks them by brute-force cosine similarity.
// It is meant for local runs and small corpora.
type VectorStore struct {
	db  *gorm.DB
	log *logger.Logger

	// writeMu serializes Upsert and Reset so positions are handed out without gaps or repeats.
	writeMu sync.Mutex
}

func NewVectorStore(db *gorm.DB, baseLog *logger.Logger) *VectorStore {
	return &VectorStore{db: db, log: baseLog.With("repo", "ChunkVectorStore")}
}

func (s *VectorStore) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&rag.CorpusChunk{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Upsert inserts chunks that are not stored yet; rows with an existing id are left untouched.
func (s *VectorStore) Upsert(ctx context.Context, chunks []rag.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int64
		if err := tx.Model(&rag.CorpusChunk{}).Select("COALESCE(MAX(position), -1)").Row().Scan(&maxPos); err != nil {
			return fmt.Errorf("read max position: %w", err)
		}
		next := maxPos + 1
		now := time.Now().UTC()
		rows := make([]*rag.CorpusChunk, 0, len(chunks))
		for i, c := range chunks {
			if c.ID == "" {
				return fmt.Errorf("chunk id is required")
			}
			raw, err := json.Marshal(c.Vector)
			if err != nil {
				return fmt.Errorf("encode embedding %q: %w", c.ID, err)
			}
			rows = append(rows, &rag.CorpusChunk{
				ID:         c.ID,
				Source:     c.Source,
				Page:       c.Page,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
				Embedding:  datatypes.JSON(raw),
				Position:   next + int64(i),
				CreatedAt:  now,
			})
		}
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
			Create(&rows).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, k int) ([]rag.Match, error) {
	if k <= 0 {
		return []rag.Match{}, nil
	}
	var rows []rag.CorpusChunk
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	out := make([]rag.Match, 0, len(rows))
	for _, row := range rows {
		var emb []float32
		if err := json.Unmarshal(row.Embedding, &emb); err != nil {
			s.log.Warn("Skipping chunk with unreadable embedding", "chunk_id", row.ID, "error", err)
			continue
		}
		if len(emb) != len(vector) {
			s.log.Warn("Skipping chunk with mismatched embedding size", "chunk_id", row.ID, "want", len(vector), "got", len(emb))
			continue
		}
		out = append(out, rag.Match{
			Chunk: rag.Chunk{
				ID:         row.ID,
				Source:     row.Source,
				Page:       row.Page,
				ChunkIndex: row.ChunkIndex,
				Text:       row.Text,
			},
			Score: Cosine(vector, emb),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *VectorStore) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&rag.CorpusChunk{})
	if res.Error != nil {
		return fmt.Errorf("reset chunks: %w", res.Error)
	}
	s.log.Info("Local corpus cleared", "deleted", res.RowsAffected)
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
