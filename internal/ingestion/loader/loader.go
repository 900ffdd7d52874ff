// Package loader turns files on disk or in a bucket into per-page documents.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"

	"github.com/marr05/RAG-TO-AWS/internal/domain/rag"
	"github.com/marr05/RAG-TO-AWS/internal/platform/gcp"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// ObjectReader is the bucket surface the loader needs; *gcp.ObjectSource satisfies it.
type ObjectReader interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	ReadAll(ctx context.Context, bucket, key string) ([]byte, error)
}

type Loader struct {
	log     *logger.Logger
	objects ObjectReader
}

// New returns a loader; objects may be nil when only local directories are loaded.
func New(baseLog *logger.Logger, objects ObjectReader) *Loader {
	return &Loader{log: baseLog.With("component", "DocumentLoader"), objects: objects}
}

// Supported reports whether name has an extension the loader can parse.
func Supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	default:
		return false
	}
}

// Load reads a local directory or a gs://bucket/prefix location.
func (l *Loader) Load(ctx context.Context, location string) ([]rag.Document, error) {
	if gcp.IsURI(location) {
		return l.LoadObjects(ctx, location)
	}
	return l.LoadDir(ctx, location)
}

// LoadDir walks dir in lexical order. Sources are slash paths relative to dir.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]rag.Document, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)

	var docs []rag.Document
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		pages, err := Parse(filepath.ToSlash(rel), data)
		if err != nil {
			l.log.Warn("Skipping unreadable document", "path", p, "error", err)
			continue
		}
		docs = append(docs, pages...)
	}
	l.log.Info("Loaded documents", "dir", dir, "files", len(files), "pages", len(docs))
	return docs, nil
}

// LoadObjects reads every supported object under a gs:// prefix. Sources keep the full gs:// uri.
func (l *Loader) LoadObjects(ctx context.Context, uri string) ([]rag.Document, error) {
	if l.objects == nil {
		return nil, fmt.Errorf("object storage not configured for %s", uri)
	}
	bucket, prefix, err := gcp.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	keys, err := l.objects.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	var docs []rag.Document
	n := 0
	for _, key := range keys {
		if !Supported(key) {
			continue
		}
		n++
		data, err := l.objects.ReadAll(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		pages, err := Parse("gs://"+bucket+"/"+key, data)
		if err != nil {
			l.log.Warn("Skipping unreadable object", "bucket", bucket, "key", key, "error", err)
			continue
		}
		docs = append(docs, pages...)
	}
	l.log.Info("Loaded documents", "uri", uri, "objects", n, "pages", len(docs))
	return docs, nil
}

// Parse extracts pages from one file. PDFs yield one document per non-empty page, numbered from 0;
// text and markdown files are a single page 0.
func Parse(source string, data []byte) ([]rag.Document, error) {
	switch strings.ToLower(path.Ext(source)) {
	case ".pdf":
		return parsePDF(source, data)
	case ".txt", ".md":
		text := sanitizeUTF8(string(data))
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []rag.Document{{Source: source, Page: 0, Text: text}}, nil
	default:
		return nil, fmt.Errorf("unsupported document type: %s", source)
	}
}

func parsePDF(source string, data []byte) (docs []rag.Document, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("pdf %s: %v", source, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf reader: %w", err)
	}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("pdf page %d: %w", i, err)
		}
		text = sanitizeUTF8(text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, rag.Document{Source: source, Page: i - 1, Text: text})
	}
	return docs, nil
}

func sanitizeUTF8(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, " ")
}
