package query

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// Query is the persisted unit of work: one question, its eventual answer and the chunk ids it cites.
type Query struct {
	QueryID     string    `gorm:"column:query_id;type:varchar(64);primaryKey" json:"query_id"`
	UserID      string    `gorm:"column:user_id;type:varchar(255);not null;index:idx_query_user_created,priority:1" json:"user_id"`
	CreatedTime time.Time `gorm:"column:created_time;not null;index:idx_query_user_created,priority:2" json:"created_time"`
	TTL         time.Time `gorm:"column:ttl;not null;index" json:"ttl"`
	QueryText   string    `gorm:"column:query_text;type:text;not null" json:"query_text"`
	AnswerText  *string   `gorm:"column:answer_text;type:text" json:"answer_text"`

	Sources    datatypes.JSONSlice[string] `gorm:"column:sources" json:"sources"`
	IsComplete bool                        `gorm:"column:is_complete;not null;default:false" json:"is_complete"`

	Status        string  `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	FailureReason *string `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`

	LockedAt  *time.Time `gorm:"column:locked_at" json:"-"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null" json:"-"`
}

func (Query) TableName() string { return "query" }

// Terminal reports whether the record reached complete or failed.
func (q *Query) Terminal() bool {
	if q == nil {
		return false
	}
	return q.IsComplete || q.Status == StatusComplete || q.Status == StatusFailed
}

// Expired reports whether the retention window has passed at now.
func (q *Query) Expired(now time.Time) bool {
	return q != nil && !q.TTL.IsZero() && !now.Before(q.TTL)
}

// Normalize fills in API defaults so an empty source list renders as [] rather than null.
func (q *Query) Normalize() *Query {
	if q == nil {
		return nil
	}
	if q.Sources == nil {
		q.Sources = datatypes.JSONSlice[string]{}
	}
	if q.Status == "" {
		switch {
		case q.IsComplete:
			q.Status = StatusComplete
		default:
			q.Status = StatusProcessing
		}
	}
	return q
}

// Complete records a successful answer.
func (q *Query) Complete(answer string, sources []string) {
	q.AnswerText = &answer
	q.Sources = datatypes.JSONSlice[string](append([]string{}, sources...))
	q.IsComplete = true
	q.Status = StatusComplete
	q.FailureReason = nil
}

// Fail records a terminal failure; answer and sources stay unset.
func (q *Query) Fail(reason string) {
	q.AnswerText = nil
	q.Sources = datatypes.JSONSlice[string]{}
	q.IsComplete = false
	q.Status = StatusFailed
	q.FailureReason = &reason
}

// Item is the sparse storage representation: null optionals are omitted.
func (q *Query) Item() map[string]any {
	item := map[string]any{
		"query_id":     q.QueryID,
		"user_id":      q.UserID,
		"created_time": q.CreatedTime.UTC().Format(time.RFC3339Nano),
		"ttl":          q.TTL.UTC().Unix(),
		"query_text":   q.QueryText,
		"sources":      append([]string{}, q.Sources...),
		"is_complete":  q.IsComplete,
		"status":       q.Status,
	}
	if q.AnswerText != nil {
		item["answer_text"] = *q.AnswerText
	}
	if q.FailureReason != nil {
		item["failure_reason"] = *q.FailureReason
	}
	return item
}

type storedItem struct {
	QueryID       string   `json:"query_id"`
	UserID        string   `json:"user_id"`
	CreatedTime   string   `json:"created_time"`
	TTL           int64    `json:"ttl"`
	QueryText     string   `json:"query_text"`
	AnswerText    *string  `json:"answer_text"`
	Sources       []string `json:"sources"`
	IsComplete    bool     `json:"is_complete"`
	Status        string   `json:"status"`
	FailureReason *string  `json:"failure_reason"`
}

// FromItem rebuilds a record from its sparse storage representation.
func FromItem(raw []byte) (*Query, error) {
	var it storedItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339Nano, it.CreatedTime)
	if err != nil {
		return nil, err
	}
	q := &Query{
		QueryID:       it.QueryID,
		UserID:        it.UserID,
		CreatedTime:   created,
		TTL:           time.Unix(it.TTL, 0).UTC(),
		QueryText:     it.QueryText,
		AnswerText:    it.AnswerText,
		Sources:       datatypes.JSONSlice[string](it.Sources),
		IsComplete:    it.IsComplete,
		Status:        it.Status,
		FailureReason: it.FailureReason,
	}
	return q.Normalize(), nil
}
