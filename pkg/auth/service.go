package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
	"github.com/skretail/console/pkg/session"
)

const (
	// TokenExpiry is how long console cookies are valid.
	TokenExpiry = 7 * 24 * time.Hour // 7 days
)

// JWTClaims represents the claims in the console cookie. Backend tokens never
// leave the server; the cookie only names the session.
type JWTClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Service handles console authentication on top of the backend session.
type Service struct {
	sessions  *session.Service
	jwtSecret []byte
	onLogout  []func(sessionID string)
}

// NewService creates a new auth service.
func NewService(sessions *session.Service, jwtSecret string) *Service {
	return &Service{
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
	}
}

// Login signs the operator into the backend and opens a console session.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Session, error) {
	sess, err := s.sessions.Login(ctx, email, password)
	if err != nil {
		return nil, authError(err)
	}
	return sess, nil
}

func (s *Service) Signup(ctx context.Context, email, password string) error {
	return authError(s.sessions.Signup(ctx, email, password))
}

func authError(err error) error {
	var ae *session.AuthError
	if errors.As(err, &ae) {
		return errcodes.AuthFailed(ae.Message)
	}
	return err
}

// Logout ends the session and runs the logout hooks. Ending a session that
// is already gone is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Logout(ctx, sessionID); err != nil {
		return err
	}
	s.ended(sessionID)
	return nil
}

func (s *Service) ended(sessionID string) {
	for _, fn := range s.onLogout {
		fn(sessionID)
	}
}

// OnLogout registers fn to run whenever a session ends: on logout, when
// validation finds its token dead, and when a request arrives for a session
// that is gone or has lost its access token.
func (s *Service) OnLogout(fn func(sessionID string)) {
	s.onLogout = append(s.onLogout, fn)
}

// GenerateToken creates a new JWT token naming the session.
func (s *Service) GenerateToken(sess *models.Session) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		SessionID: sess.ID,
		Email:     sess.UserEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// Sessions exposes the session service for callers that need a requester.
func (s *Service) Sessions() *session.Service {
	return s.sessions
}
