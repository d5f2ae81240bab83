package service

import (
	"encoding/hex"
	"strings"

	"github.com/ayo6706/kenyabank/internal/domain"
	"github.com/ayo6706/kenyabank/internal/models"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageBounds clamps a 1-based page and page size and returns the row offset.
func pageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

// newAccountNumber returns "KB" followed by 10 random upper-case hex characters.
func newAccountNumber() string {
	id := uuid.New()
	return domain.AccountNumberPrefix + strings.ToUpper(hex.EncodeToString(id[:5]))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// accountKeys lists the non-empty account numbers touched by a transaction.
func accountKeys(t *models.Transaction) []string {
	var keys []string
	if t.FromAccount != nil && *t.FromAccount != "" {
		keys = append(keys, *t.FromAccount)
	}
	if t.ToAccount != nil && *t.ToAccount != "" {
		keys = append(keys, *t.ToAccount)
	}
	return keys
}
