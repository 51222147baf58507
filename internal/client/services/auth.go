package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenKey = "auth.access_token"
	ownerKey = "auth.owner_id"
)

// AuthService keeps the access token of the signed-in owner in the local
// replica. Tokens are issued elsewhere; the client only reads the owner id
// out of them, the server does the verification.
type AuthService interface {
	Login(ctx context.Context, token string) (ownerID string, err error)
	// Session returns the stored token and owner, or client.ErrNotLoggedIn.
	Session(ctx context.Context) (token, ownerID string, err error)
	Logout(ctx context.Context) error
	// Ping returns the server clock.
	Ping(ctx context.Context) (string, error)
}

type authService struct {
	client client.Client
	db     *sql.DB
	now    func() time.Time
}

// NewAuthService constructs an AuthService bound to the given API client and
// DB. c may be nil when the server is not configured; Ping then reports
// client.ErrUnavailable.
func NewAuthService(c client.Client, db *sql.DB) AuthService {
	return &authService{client: c, db: db, now: time.Now}
}

type tokenClaims struct {
	jwt.RegisteredClaims
	OwnerID string `json:"owner_id"`
}

// OwnerFromToken extracts the owner id without checking the signature.
func OwnerFromToken(token string, now time.Time) (string, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if claims.OwnerID == "" {
		return "", common.ErrInvalidToken
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return "", common.ErrTokenExpired
	}
	return claims.OwnerID, nil
}

func (a *authService) Login(ctx context.Context, token string) (string, error) {
	ownerID, err := OwnerFromToken(token, a.now())
	if err != nil {
		return "", err
	}

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).SetMany(ctx, map[string][]byte{
			tokenKey: []byte(token),
			ownerKey: []byte(ownerID),
		})
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return ownerID, nil
}

func (a *authService) Session(ctx context.Context) (string, string, error) {
	vals, err := metadata.NewSQLiteRepository(a.db).GetMany(ctx, tokenKey, ownerKey)
	if err != nil {
		return "", "", err
	}
	token, owner := vals[tokenKey], vals[ownerKey]
	if len(token) == 0 || len(owner) == 0 {
		return "", "", client.ErrNotLoggedIn
	}
	return string(token), string(owner), nil
}

// Logout forgets the token. The replica, its outbox and watermarks stay, so
// signing back in as the same owner resumes where it stopped.
func (a *authService) Logout(ctx context.Context) error {
	return metadata.NewSQLiteRepository(a.db).Delete(ctx, tokenKey, ownerKey)
}

func (a *authService) Ping(ctx context.Context) (string, error) {
	if a.client == nil {
		return "", client.ErrUnavailable
	}
	return a.client.Ping(ctx)
}
