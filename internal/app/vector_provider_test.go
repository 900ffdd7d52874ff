package app

import (
	"errors"
	"testing"

	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

func TestNewVectorStoreMapsQdrantConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		code VectorProviderConfigErrorCode
	}{
		{"missing dim", map[string]string{"QDRANT_URL": "http://localhost:6333", "QDRANT_VECTOR_DIM": ""}, VectorProviderConfigErrorMissingQdrantVector},
		{"invalid dim", map[string]string{"QDRANT_URL": "http://localhost:6333", "QDRANT_VECTOR_DIM": "abc"}, VectorProviderConfigErrorInvalidQdrantVector},
		{"missing url", map[string]string{"QDRANT_URL": "", "QDRANT_VECTOR_DIM": "1536"}, VectorProviderConfigErrorMissingQdrantURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("QDRANT_DISTANCE", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := newVectorStore(logger.Nop(), VectorProviderQdrant, nil)
			var verr *VectorProviderConfigError
			if !errors.As(err, &verr) {
				t.Fatalf("expected VectorProviderConfigError, got=%v", err)
			}
			if verr.Code != tc.code || verr.Provider != VectorProviderQdrant {
				t.Fatalf("error: want code=%q got code=%q provider=%q", tc.code, verr.Code, verr.Provider)
			}
		})
	}
}

func TestNewVectorStoreLocalNeedsDatabase(t *testing.T) {
	_, err := newVectorStore(logger.Nop(), VectorProviderLocal, nil)
	var verr *VectorProviderConfigError
	if !errors.As(err, &verr) || verr.Code != VectorProviderConfigErrorMissingDB {
		t.Fatalf("expected missing_database, got=%v", err)
	}
}

func TestNewVectorStoreUnknownProvider(t *testing.T) {
	_, err := newVectorStore(logger.Nop(), VectorProvider("pinecone"), nil)
	var verr *VectorProviderConfigError
	if !errors.As(err, &verr) || verr.Code != VectorProviderConfigErrorUnknownProvider {
		t.Fatalf("expected unknown_vector_provider, got=%v", err)
	}
}
