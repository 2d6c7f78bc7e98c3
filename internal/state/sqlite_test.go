package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapapp/internal/conversation"
	"github.com/leapstack-labs/leapapp/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	require.NoError(t, store.Open(context.Background(), ":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func turn(role llm.Role, content string) conversation.Turn {
	return conversation.Turn{Role: role, Content: content}
}

func TestSQLiteStore_OpenMigrates(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.GetMigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	for _, table := range []string{"sessions", "turns"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s should exist", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore()
	require.NoError(t, store.Open(ctx, path))
	sess, err := store.CreateSession(ctx, "/apps/one", "sales", "anthropic/claude-3.5-sonnet")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// reopening applies no migrations twice and keeps the data
	reopened := NewSQLiteStore()
	require.NoError(t, reopened.Open(ctx, path))
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "sales", got.Database)
	assert.Equal(t, path, reopened.Path())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore()
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "", "", "")
	assert.EqualError(t, err, "database not opened")
	_, err = store.LoadTranscript(ctx, "x", conversation.KindVisible)
	assert.EqualError(t, err, "database not opened")
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Sessions(t *testing.T) {
	tests := []struct {
		name   string
		verify func(t *testing.T, store *SQLiteStore)
	}{
		{
			name: "create and get",
			verify: func(t *testing.T, store *SQLiteStore) {
				ctx := context.Background()
				sess, err := store.CreateSession(ctx, "/apps/one", "sales", "model-a")
				require.NoError(t, err)
				assert.Len(t, sess.ID, 36)

				got, err := store.GetSession(ctx, sess.ID)
				require.NoError(t, err)
				assert.Equal(t, sess.ID, got.ID)
				assert.Equal(t, "/apps/one", got.ProjectDir)
				assert.Equal(t, "model-a", got.Model)
				assert.False(t, got.ArtifactGenerated)
				assert.Equal(t, 0, got.Turns)
				assert.WithinDuration(t, sess.CreatedAt, got.CreatedAt, time.Second)
			},
		},
		{
			name: "get missing",
			verify: func(t *testing.T, store *SQLiteStore) {
				_, err := store.GetSession(context.Background(), "nope")
				assert.ErrorIs(t, err, ErrSessionNotFound)
			},
		},
		{
			name: "set database and artifact flag",
			verify: func(t *testing.T, store *SQLiteStore) {
				ctx := context.Background()
				sess, err := store.CreateSession(ctx, "/apps/one", "", "m")
				require.NoError(t, err)

				require.NoError(t, store.SetDatabase(ctx, sess.ID, "hr"))
				require.NoError(t, store.SetArtifactGenerated(ctx, sess.ID, true))

				got, err := store.GetSession(ctx, sess.ID)
				require.NoError(t, err)
				assert.Equal(t, "hr", got.Database)
				assert.True(t, got.ArtifactGenerated)

				assert.ErrorIs(t, store.SetDatabase(ctx, "nope", "x"), ErrSessionNotFound)
			},
		},
		{
			name: "latest and list",
			verify: func(t *testing.T, store *SQLiteStore) {
				ctx := context.Background()
				_, err := store.LatestSession(ctx, "")
				require.ErrorIs(t, err, ErrSessionNotFound)

				first, err := store.CreateSession(ctx, "/apps/one", "", "m")
				require.NoError(t, err)
				time.Sleep(5 * time.Millisecond)
				second, err := store.CreateSession(ctx, "/apps/two", "", "m")
				require.NoError(t, err)

				latest, err := store.LatestSession(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, second.ID, latest.ID)

				latest, err = store.LatestSession(ctx, "/apps/one")
				require.NoError(t, err)
				assert.Equal(t, first.ID, latest.ID)

				// appending turns makes a session the most recent
				time.Sleep(5 * time.Millisecond)
				require.NoError(t, store.AppendTurns(ctx, first.ID, conversation.KindVisible,
					[]conversation.Turn{turn(llm.RoleUser, "hi")}))

				all, err := store.ListSessions(ctx, 0)
				require.NoError(t, err)
				require.Len(t, all, 2)
				assert.Equal(t, first.ID, all[0].ID)
				assert.Equal(t, 1, all[0].Turns)

				limited, err := store.ListSessions(ctx, 1)
				require.NoError(t, err)
				assert.Len(t, limited, 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, setupTestStore(t))
		})
	}
}

func TestSQLiteStore_Transcripts(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	sess, err := store.CreateSession(ctx, "/apps/one", "sales", "m")
	require.NoError(t, err)

	require.NoError(t, store.AppendTurns(ctx, sess.ID, conversation.KindInternal, []conversation.Turn{
		turn(llm.RoleSystem, "system prompt"),
		turn(llm.RoleUser, "schema + add a button"),
		turn(llm.RoleAssistant, "<component>A</component>"),
	}))
	require.NoError(t, store.AppendTurns(ctx, sess.ID, conversation.KindVisible, []conversation.Turn{
		turn(llm.RoleUser, "add a button"),
		turn(llm.RoleAssistant, "Added a button."),
	}))
	require.NoError(t, store.AppendTurns(ctx, sess.ID, conversation.KindInternal, []conversation.Turn{
		turn(llm.RoleUser, "I encountered an error with the following message, please fix it: boom"),
	}))
	require.NoError(t, store.AppendTurns(ctx, sess.ID, conversation.KindInternal, nil))

	visible, err := store.LoadTranscript(ctx, sess.ID, conversation.KindVisible)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, llm.RoleUser, visible[0].Role)
	assert.Equal(t, "Added a button.", visible[1].Content)
	assert.False(t, visible[0].CreatedAt.IsZero())

	internal, err := store.LoadTranscript(ctx, sess.ID, conversation.KindInternal)
	require.NoError(t, err)
	require.Len(t, internal, 4)
	assert.Equal(t, llm.RoleSystem, internal[0].Role)
	assert.Contains(t, internal[3].Content, "please fix it: boom")

	other, err := store.LoadTranscript(ctx, "unknown", conversation.KindVisible)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLiteStore_AppendRequiresSession(t *testing.T) {
	store := setupTestStore(t)
	err := store.AppendTurns(context.Background(), "missing", conversation.KindVisible,
		[]conversation.Turn{turn(llm.RoleUser, "hi")})
	assert.ErrorContains(t, err, "failed to insert turn")
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	sess, err := store.CreateSession(ctx, "/apps/one", "", "m")
	require.NoError(t, err)

	rec := NewRecorder(store, sess.ID)
	assert.Equal(t, sess.ID, rec.SessionID())
	require.NoError(t, rec.AppendTurns(ctx, conversation.KindVisible, []conversation.Turn{turn(llm.RoleUser, "hi")}))

	turns, err := store.LoadTranscript(ctx, sess.ID, conversation.KindVisible)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}
