package repository_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/model"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/repository"
)

func mustCode(t *testing.T, database *sqlx.DB, code string) *model.Code {
	t.Helper()
	c, err := repository.NewStore[model.Code](database).Create(context.Background(), map[string]any{
		"code": code,
		"url":  "https://example.com/codes/" + code,
	})
	require.NoError(t, err)
	return c
}

func mustName(t *testing.T, database *sqlx.DB, codeID int64, name string) *model.Name {
	t.Helper()
	n, err := repository.NewStore[model.Name](database).Create(context.Background(), map[string]any{
		"code_id": codeID,
		"name":    name,
		"url":     "https://example.com/names/" + name,
	})
	require.NoError(t, err)
	return n
}
