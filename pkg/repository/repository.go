package repository

import (
	"context"

	"github.com/smallbiznis/quoteflow/pkg/db/option"
	"gorm.io/gorm"
)

// Store runs filtered reads for one model type. Non-zero fields of the query
// value become equality conditions; zero fields are ignored.
type Store[T any] struct {
	db *gorm.DB
}

func NewStore[T any](db *gorm.DB) *Store[T] {
	return &Store[T]{db: db}
}

func (s *Store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	stmt := s.db.WithContext(ctx).Where(query)
	for _, opt := range opts {
		stmt = opt(stmt)
	}
	var rows []*T
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
