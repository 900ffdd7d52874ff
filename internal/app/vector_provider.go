package app

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/marr05/RAG-TO-AWS/internal/data/repos/chunks"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
	"github.com/marr05/RAG-TO-AWS/internal/platform/qdrant"
	"github.com/marr05/RAG-TO-AWS/internal/services"
)

type VectorProvider string

const (
	VectorProviderQdrant VectorProvider = "qdrant"
	VectorProviderLocal  VectorProvider = "local"
)

type VectorProviderConfigErrorCode string

const (
	VectorProviderConfigErrorUnknownProvider      VectorProviderConfigErrorCode = "unknown_vector_provider"
	VectorProviderConfigErrorMissingDB            VectorProviderConfigErrorCode = "missing_database"
	VectorProviderConfigErrorMissingQdrantURL     VectorProviderConfigErrorCode = "missing_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantURL     VectorProviderConfigErrorCode = "invalid_qdrant_url"
	VectorProviderConfigErrorMissingQdrantVector  VectorProviderConfigErrorCode = "missing_qdrant_vector_dim"
	VectorProviderConfigErrorInvalidQdrantVector  VectorProviderConfigErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderConfigErrorInvalidQdrantMetric  VectorProviderConfigErrorCode = "invalid_qdrant_distance"
	VectorProviderConfigErrorUnknownQdrantFailure VectorProviderConfigErrorCode = "qdrant_config_error"
)

type VectorProviderConfigError struct {
	Code     VectorProviderConfigErrorCode
	Provider VectorProvider
	Cause    error
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf("invalid vector provider config (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// newVectorStore builds the corpus store for the configured provider. The local provider
// keeps embeddings in the SQL database and needs db.
func newVectorStore(log *logger.Logger, provider VectorProvider, db *gorm.DB) (services.VectorStore, error) {
	switch provider {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return nil, mapVectorProviderConfigError(err)
		}
		store, err := qdrant.NewVectorStore(log, qcfg)
		if err != nil {
			return nil, fmt.Errorf("init qdrant vector store: %w", err)
		}
		return store, nil
	case VectorProviderLocal:
		if db == nil {
			return nil, &VectorProviderConfigError{
				Code:     VectorProviderConfigErrorMissingDB,
				Provider: provider,
				Cause:    fmt.Errorf("local vector provider requires a SQL database"),
			}
		}
		return chunks.NewVectorStore(db, log), nil
	default:
		return nil, &VectorProviderConfigError{
			Code:     VectorProviderConfigErrorUnknownProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
	}
}

func mapVectorProviderConfigError(err error) error {
	code := VectorProviderConfigErrorUnknownQdrantFailure
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderConfigErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderConfigErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingVectorDim:
			code = VectorProviderConfigErrorMissingQdrantVector
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderConfigErrorInvalidQdrantVector
		case qdrant.ConfigErrorInvalidDistance:
			code = VectorProviderConfigErrorInvalidQdrantMetric
		}
	}
	return &VectorProviderConfigError{
		Code:     code,
		Provider: VectorProviderQdrant,
		Cause:    err,
	}
}
