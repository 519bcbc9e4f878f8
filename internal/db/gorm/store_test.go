package gorm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/pkg/models"
)

var _ roster.Backend = (*StateStore)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Ping())
	assert.Equal(t, DialectSQLite, store.Dialect())

	var journalMode string
	require.NoError(t, store.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	for _, table := range []string{"roster_states", "roster_revisions"} {
		assert.True(t, store.DB.Migrator().HasTable(table), table)
	}
}

func TestNewStore_BadConfig(t *testing.T) {
	_, err := NewStore(Config{})
	assert.Error(t, err)

	_, err = NewStore(Config{Dialect: DialectPostgres})
	assert.Error(t, err)

	_, err = NewStore(Config{Dialect: "oracle", Path: "x"})
	assert.Error(t, err)
}

func TestMigrationIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := Config{Path: path, LogLevel: logger.Silent}

	store1, err := NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, NewStateStore(store1, 0).Write(context.Background(), "k", []byte("v")))
	require.NoError(t, store1.Close())

	store2, err := NewStore(cfg)
	require.NoError(t, err)
	defer store2.Close()

	got, err := NewStateStore(store2, 0).Read(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

// StateStoreSuite exercises the roster backend on SQLite.
type StateStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	state *StateStore
}

func (s *StateStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newTestStore(s.T())
	s.state = NewStateStore(s.store, 3)
}

func TestStateStoreSuite(t *testing.T) {
	suite.Run(t, new(StateStoreSuite))
}

func (s *StateStoreSuite) TestReadMissing() {
	got, err := s.state.Read(s.ctx, "absent")
	s.NoError(err)
	s.Nil(got)
}

func (s *StateStoreSuite) TestWriteOverwrites() {
	s.Require().NoError(s.state.Write(s.ctx, "k", []byte("one")))
	s.Require().NoError(s.state.Write(s.ctx, "k", []byte("two")))

	got, err := s.state.Read(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("two"), got)

	keys, err := s.state.Keys(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"k"}, keys)
}

func (s *StateStoreSuite) TestRevisionsArePruned() {
	for i := 1; i <= 5; i++ {
		s.Require().NoError(s.state.Write(s.ctx, "k", []byte(fmt.Sprintf("p%d", i))))
	}

	revs, err := s.state.Revisions(s.ctx, "k", 0)
	s.Require().NoError(err)
	s.Require().Len(revs, 3)
	s.Equal(int64(5), revs[0].Revision)
	s.Equal(int64(3), revs[2].Revision)

	payload, err := s.state.RevisionPayload(s.ctx, "k", 4)
	s.Require().NoError(err)
	s.Equal([]byte("p4"), payload)

	_, err = s.state.RevisionPayload(s.ctx, "k", 1)
	s.ErrorIs(err, ErrRevisionNotFound)
}

func (s *StateStoreSuite) TestDeleteKeepsHistory() {
	s.Require().NoError(s.state.Write(s.ctx, "k", []byte("one")))
	s.Require().NoError(s.state.Write(s.ctx, "other", []byte("x")))
	s.Require().NoError(s.state.Delete(s.ctx, "k"))

	got, err := s.state.Read(s.ctx, "k")
	s.NoError(err)
	s.Nil(got)

	keys, err := s.state.Keys(s.ctx)
	s.NoError(err)
	s.Equal([]string{"other"}, keys)

	payload, err := s.state.RevisionPayload(s.ctx, "k", 1)
	s.Require().NoError(err)
	s.Equal([]byte("one"), payload)

	// Numbering continues after the kept history.
	s.Require().NoError(s.state.Write(s.ctx, "k", []byte("two")))
	revs, err := s.state.Revisions(s.ctx, "k", 10)
	s.Require().NoError(err)
	s.Require().Len(revs, 2)
	s.Equal(int64(2), revs[0].Revision)

	// Deleting again is not an error.
	s.NoError(s.state.Delete(s.ctx, "k"))
	s.NoError(s.state.Delete(s.ctx, "k"))
}

func (s *StateStoreSuite) TestPurgeRemovesHistory() {
	s.Require().NoError(s.state.Write(s.ctx, "k", []byte("one")))
	s.Require().NoError(s.state.Write(s.ctx, "other", []byte("x")))
	s.Require().NoError(s.state.Purge(s.ctx, "k"))

	revs, err := s.state.Revisions(s.ctx, "k", 10)
	s.NoError(err)
	s.Empty(revs)

	other, err := s.state.Read(s.ctx, "other")
	s.NoError(err)
	s.Equal([]byte("x"), other)
}

// TestRosterRoundTrip runs the roster store on top of SQLite.
func (s *StateStoreSuite) TestRosterRoundTrip() {
	st := roster.NewStore(s.state)
	s.Require().NoError(st.Load(s.ctx))

	session := models.NewCandidateSession("c1", "Ada", "ada@example.com", "5551234567", "resume", time.Unix(1_700_000_000, 0))
	s.Require().NoError(st.Insert(session, true))
	s.Require().NoError(st.Close(s.ctx))

	reopened := roster.NewStore(s.state)
	defer func() { _ = reopened.Close(s.ctx) }()
	s.Require().NoError(reopened.Load(s.ctx))

	s.Equal(1, reopened.Len())
	s.Equal("c1", reopened.ActiveID())
	got, err := reopened.FindByID("c1")
	s.Require().NoError(err)
	s.Equal("Ada", got.Name)
}

// TestPostgresStateStore runs against a live database when
// INTERVUE_TEST_POSTGRES_DSN is set.
func TestPostgresStateStore(t *testing.T) {
	dsn := os.Getenv("INTERVUE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INTERVUE_TEST_POSTGRES_DSN not set")
	}
	store, err := NewStore(Config{Dialect: DialectPostgres, DSN: dsn, LogLevel: logger.Silent})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	state := NewStateStore(store, 2)
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())
	defer func() { _ = state.Purge(ctx, key) }()

	require.NoError(t, state.Write(ctx, key, []byte("a")))
	require.NoError(t, state.Write(ctx, key, []byte("b")))
	got, err := state.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}
