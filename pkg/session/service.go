package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/models"
)

const genericAuthMessage = "An unexpected error occurred"

// AuthError is a rejected login or signup. Message is safe to show on the
// form.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// User is the profile the backend returns with a login.
type User struct {
	Email string `json:"email"`
}

type loginResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	Token        string          `json:"token"`
	User         json.RawMessage `json:"user"`
}

type Service struct {
	store  Store
	client *apiclient.Client

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(store Store, client *apiclient.Client) *Service {
	return &Service{
		store:  store,
		client: client,
		locks:  map[string]*sync.Mutex{},
	}
}

// Login exchanges credentials for tokens and stores them in a new session.
// Older backends answer with {token, user}, in which case the token is the
// access token and the session has no refresh token.
func (svc *Service) Login(ctx context.Context, email, password string) (*models.Session, error) {
	var raw []byte
	err := svc.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   map[string]string{"email": email, "password": password},
	}, &raw)
	if err != nil {
		return nil, authError(err)
	}

	resp := loginResponse{}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &AuthError{genericAuthMessage}
	}

	sess := &models.Session{ID: uuid.New().String(), UserEmail: email}
	switch {
	case resp.AccessToken == "" && resp.Token != "":
		sess.AccessToken = resp.Token
	case resp.AccessToken == "":
		return nil, &AuthError{"Login response missing required field: accessToken"}
	case resp.RefreshToken == "":
		return nil, &AuthError{"Login response missing required field: refreshToken"}
	default:
		sess.AccessToken = resp.AccessToken
		sess.RefreshToken = resp.RefreshToken
	}

	if len(resp.User) > 0 && string(resp.User) != "null" {
		sess.User = string(resp.User)
		u := User{}
		if err := json.Unmarshal(resp.User, &u); err == nil && u.Email != "" {
			sess.UserEmail = u.Email
		}
	}

	now := time.Now()
	sess.LastValidatedAt = &now
	if err := svc.store.Save(ctx, sess); err != nil {
		return nil, errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("operator logged in", logger.Data{"session_id": sess.ID, "email": sess.UserEmail})
	return sess, nil
}

func (svc *Service) Signup(ctx context.Context, email, password string) error {
	err := svc.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Body:   map[string]string{"email": email, "password": password},
	}, nil)
	if err != nil {
		return authError(err)
	}
	return nil
}

// authError turns a 4xx from the auth endpoints into an AuthError carrying
// the backend's message. Anything else is returned untouched.
func authError(err error) error {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || !apiclient.IsClientError(err) {
		return err
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(apiErr.Body, &body)
	switch {
	case body.Message != "":
		return &AuthError{body.Message}
	case body.Error != "":
		return &AuthError{body.Error}
	}
	return &AuthError{genericAuthMessage}
}

func (svc *Service) Retrieve(ctx context.Context, id string) (*models.Session, error) {
	return svc.store.Load(ctx, id)
}

// Refresh trades the refresh token for a new access token. Only the access
// token is overwritten.
func (svc *Service) Refresh(ctx context.Context, id string) (string, error) {
	return svc.refresh(ctx, id, "")
}

// refresh skips the network call when another request already replaced the
// stale token while this one waited on the lock.
func (svc *Service) refresh(ctx context.Context, id, stale string) (string, error) {
	lock := svc.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := svc.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", apiclient.ErrNoRefreshToken
		}
		return "", err
	}
	if stale != "" && sess.AccessToken != "" && sess.AccessToken != stale {
		return sess.AccessToken, nil
	}
	if sess.RefreshToken == "" {
		return "", apiclient.ErrNoRefreshToken
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	err = svc.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/token",
		Body:   map[string]string{"token": sess.RefreshToken},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("token refresh response missing accessToken")
	}

	if err := svc.store.UpdateAccessToken(ctx, id, resp.AccessToken); err != nil {
		return "", err
	}
	logger.FromContext(ctx).Info("refreshed access token", logger.Data{"session_id": id})
	return resp.AccessToken, nil
}

// Validate asks the backend whether the session's access token is still
// good. A rejected token is dropped along with the cached user, and the
// session then counts as logged out.
func (svc *Service) Validate(ctx context.Context, id string) (bool, error) {
	sess, err := svc.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if sess.AccessToken == "" {
		return false, nil
	}

	err = svc.Requester(id).Do(ctx, apiclient.Request{Path: "/auth/validate"}, nil)
	if err != nil {
		if !apiclient.IsClientError(err) && !errors.Is(err, apiclient.ErrNoRefreshToken) {
			return false, err
		}
		logger.FromContext(ctx).Warn("session failed validation", logger.Data{"session_id": id, "error": err.Error()})
		if err := svc.store.ClearAccess(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return false, err
		}
		return false, nil
	}

	now := time.Now()
	sess, err = svc.store.Load(ctx, id)
	if err != nil {
		return false, err
	}
	sess.LastValidatedAt = &now
	if err := svc.store.Save(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// Logout forgets the session. Logging out twice is fine.
func (svc *Service) Logout(ctx context.Context, id string) error {
	if err := svc.store.Delete(ctx, id); err != nil {
		return err
	}
	svc.locksMu.Lock()
	delete(svc.locks, id)
	svc.locksMu.Unlock()
	return nil
}

// Bind returns a token source for one session.
func (svc *Service) Bind(id string) *Bound {
	return &Bound{svc: svc, id: id}
}

// Requester returns an authenticated client for one session.
func (svc *Service) Requester(id string) apiclient.Requester {
	return svc.client.WithTokens(svc.Bind(id))
}

// Public returns the anonymous client.
func (svc *Service) Public() apiclient.Requester {
	return svc.client
}

func (svc *Service) lockFor(id string) *sync.Mutex {
	svc.locksMu.Lock()
	defer svc.locksMu.Unlock()
	l, ok := svc.locks[id]
	if !ok {
		l = &sync.Mutex{}
		svc.locks[id] = l
	}
	return l
}

// Bound is a session ID tied to its service. It implements
// apiclient.TokenSource.
type Bound struct {
	svc *Service
	id  string

	mu   sync.Mutex
	last string
}

func (b *Bound) ID() string {
	return b.id
}

// AccessToken returns "" for a missing or logged out session so callers fail
// as unauthenticated.
func (b *Bound) AccessToken(ctx context.Context) (string, error) {
	sess, err := b.svc.store.Load(ctx, b.id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", nil
		}
		return "", err
	}
	b.mu.Lock()
	b.last = sess.AccessToken
	b.mu.Unlock()
	return sess.AccessToken, nil
}

func (b *Bound) Refresh(ctx context.Context) (string, error) {
	b.mu.Lock()
	stale := b.last
	b.mu.Unlock()

	token, err := b.svc.refresh(ctx, b.id, stale)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.last = token
	b.mu.Unlock()
	return token, nil
}
