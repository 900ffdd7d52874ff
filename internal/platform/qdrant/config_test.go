package qdrant

import (
	"errors"
	"testing"
)

func TestResolveConfigFromEnvValid(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "docs")
	t.Setenv("QDRANT_VECTOR_DIM", "1536")
	t.Setenv("QDRANT_DISTANCE", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.URL != "http://qdrant:6333" {
		t.Fatalf("URL: want=%q got=%q", "http://qdrant:6333", cfg.URL)
	}
	if cfg.Collection != "docs" {
		t.Fatalf("Collection: want=%q got=%q", "docs", cfg.Collection)
	}
	if cfg.VectorDim != 1536 {
		t.Fatalf("VectorDim: want=%d got=%d", 1536, cfg.VectorDim)
	}
	if cfg.Distance != DefaultDistance {
		t.Fatalf("Distance: want=%q got=%q", DefaultDistance, cfg.Distance)
	}
	if !cfg.AutoCreate {
		t.Fatalf("AutoCreate: want=true got=false")
	}
}

func TestResolveConfigFromEnvDefaultsCollection(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("QDRANT_VECTOR_DIM", "8")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Collection != DefaultCollection {
		t.Fatalf("Collection: want=%q got=%q", DefaultCollection, cfg.Collection)
	}
}

func TestResolveConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name string
		url  string
		dim  string
		dist string
		want ConfigErrorCode
	}{
		{name: "missing url", url: "", dim: "8", want: ConfigErrorMissingURL},
		{name: "invalid url", url: "qdrant:6333", dim: "8", want: ConfigErrorInvalidURL},
		{name: "missing dim", url: "http://qdrant:6333", dim: "", want: ConfigErrorMissingVectorDim},
		{name: "invalid dim", url: "http://qdrant:6333", dim: "abc", want: ConfigErrorInvalidVectorDim},
		{name: "zero dim", url: "http://qdrant:6333", dim: "0", want: ConfigErrorInvalidVectorDim},
		{name: "bad distance", url: "http://qdrant:6333", dim: "8", dist: "hamming", want: ConfigErrorInvalidDistance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("QDRANT_URL", tc.url)
			t.Setenv("QDRANT_VECTOR_DIM", tc.dim)
			t.Setenv("QDRANT_DISTANCE", tc.dist)

			_, err := ResolveConfigFromEnv()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got=%T (%v)", err, err)
			}
			if cfgErr.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, cfgErr.Code)
			}
		})
	}
}
