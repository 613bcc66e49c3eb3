package session

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/models"
	"github.com/uptrace/bun"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions. It is the only place tokens are read from or
// written to.
type Store interface {
	Load(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	UpdateAccessToken(ctx context.Context, id, token string) error
	ClearAccess(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db}
}

func (s *BunStore) Load(ctx context.Context, id string) (*models.Session, error) {
	sess := &models.Session{}
	err := s.db.
		NewSelect().
		Model(sess).
		Where("s.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.WithStack(err)
	}
	return sess, nil
}

func (s *BunStore) Save(ctx context.Context, sess *models.Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err := s.db.
		NewInsert().
		Model(sess).
		On("CONFLICT (id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("user_email = EXCLUDED.user_email").
		Set("user = EXCLUDED.user").
		Set("last_validated_at = EXCLUDED.last_validated_at").
		Exec(ctx)
	return errors.WithStack(err)
}

func (s *BunStore) UpdateAccessToken(ctx context.Context, id, token string) error {
	res, err := s.db.
		NewUpdate().
		Model((*models.Session)(nil)).
		Set("access_token = ?", token).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	return requireAffected(res)
}

func (s *BunStore) ClearAccess(ctx context.Context, id string) error {
	res, err := s.db.
		NewUpdate().
		Model((*models.Session)(nil)).
		Set("access_token = NULL").
		Set("user = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	return requireAffected(res)
}

func (s *BunStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.
		NewDelete().
		Model((*models.Session)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WithStack(err)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// MemoryStore keeps sessions in process. Scripts use it since they only live
// for one login.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]models.Session{}}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryStore) UpdateAccessToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.AccessToken = token
	sess.UpdatedAt = time.Now()
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) ClearAccess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.AccessToken = ""
	sess.User = ""
	sess.UpdatedAt = time.Now()
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
