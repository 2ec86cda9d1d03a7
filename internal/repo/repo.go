package repo

import (
	"context"
	"database/sql"
	"errors"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// exec runs on tx when given, otherwise on the pool.
func (r Repo) exec(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
