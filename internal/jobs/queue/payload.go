// Package queue carries in-flight query records from the API process to workers.
package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/marr05/RAG-TO-AWS/internal/domain/query"
	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
)

// Payload is the message body: the full record as the API renders it.
type Payload struct {
	QueryID       *string  `json:"query_id"`
	UserID        *string  `json:"user_id"`
	CreatedTime   *string  `json:"created_time"`
	TTL           *string  `json:"ttl"`
	QueryText     *string  `json:"query_text"`
	AnswerText    *string  `json:"answer_text"`
	Sources       []string `json:"sources"`
	IsComplete    *bool    `json:"is_complete"`
	Status        string   `json:"status,omitempty"`
	FailureReason *string  `json:"failure_reason,omitempty"`
}

func Encode(q *query.Query) ([]byte, error) {
	created := q.CreatedTime.UTC().Format(time.RFC3339Nano)
	ttl := q.TTL.UTC().Format(time.RFC3339Nano)
	p := Payload{
		QueryID:       &q.QueryID,
		UserID:        &q.UserID,
		CreatedTime:   &created,
		TTL:           &ttl,
		QueryText:     &q.QueryText,
		AnswerText:    q.AnswerText,
		Sources:       append([]string{}, q.Sources...),
		IsComplete:    &q.IsComplete,
		Status:        q.Status,
		FailureReason: q.FailureReason,
	}
	return json.Marshal(p)
}

// Decode rebuilds a record from a message body. Malformed JSON, unknown fields, trailing data
// and missing required fields are all rejected with an error matching pkg/errors.ErrDecode.
func Decode(raw []byte) (*query.Query, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, decodeErr("malformed payload: %v", err)
	}
	if dec.More() {
		return nil, decodeErr("trailing data after payload")
	}

	var missing []string
	for name, present := range map[string]bool{
		"query_id":     p.QueryID != nil && strings.TrimSpace(*p.QueryID) != "",
		"user_id":      p.UserID != nil && strings.TrimSpace(*p.UserID) != "",
		"created_time": p.CreatedTime != nil,
		"ttl":          p.TTL != nil,
		"query_text":   p.QueryText != nil,
		"is_complete":  p.IsComplete != nil,
	} {
		if !present {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, decodeErr("missing required fields: %s", strings.Join(missing, ", "))
	}

	created, err := time.Parse(time.RFC3339Nano, *p.CreatedTime)
	if err != nil {
		return nil, decodeErr("created_time: %v", err)
	}
	ttl, err := time.Parse(time.RFC3339Nano, *p.TTL)
	if err != nil {
		return nil, decodeErr("ttl: %v", err)
	}
	switch p.Status {
	case "", query.StatusProcessing, query.StatusComplete, query.StatusFailed:
	default:
		return nil, decodeErr("unknown status %q", p.Status)
	}

	q := &query.Query{
		QueryID:       *p.QueryID,
		UserID:        *p.UserID,
		CreatedTime:   created.UTC(),
		TTL:           ttl.UTC(),
		QueryText:     *p.QueryText,
		AnswerText:    p.AnswerText,
		Sources:       datatypes.JSONSlice[string](p.Sources),
		IsComplete:    *p.IsComplete,
		Status:        p.Status,
		FailureReason: p.FailureReason,
	}
	return q.Normalize(), nil
}

func decodeErr(format string, args ...any) error {
	return pkgerrors.Tag(pkgerrors.ErrDecode, fmt.Errorf(format, args...))
}
