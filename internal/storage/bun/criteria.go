package bunrepo

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

func withIdentityKey(key string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("identity_key = ?", key)
	}
}

func byPosition() repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Order("position ASC")
	}
}
