package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context into a query repository, plus the GORM transaction
// to join when the caller already holds one. Redis-backed repositories ignore Tx.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Context returns Ctx, or context.Background when it was left unset.
func (c Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// DB returns the handle statements should run on: Tx when set, otherwise base, bound to the context.
func (c Context) DB(base *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = base
	}
	return db.WithContext(c.Context())
}
