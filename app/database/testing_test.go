package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	require.False(t, dirty)

	return db
}

func createLinks(t *testing.T, db *DB, maxRetries int, hrefs ...string) []Link {
	t.Helper()

	batch := make([]NewLink, len(hrefs))
	for i, h := range hrefs {
		batch[i] = NewLink{Href: h, Title: h}
	}

	links, err := NewLinkRepository(db).Create(t.Context(), batch, maxRetries)
	require.NoError(t, err)
	return links
}
