package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/client"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	client.Client
	pingTime string
	pingErr  error
}

func (f *fakeClient) Ping(ctx context.Context) (string, error) {
	return f.pingTime, f.pingErr
}

func makeToken(t *testing.T, owner string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
		OwnerID:          owner,
	})
	s, err := tok.SignedString([]byte("any"))
	require.NoError(t, err)
	return s
}

func TestOwnerFromToken(t *testing.T) {
	now := time.Now()

	owner, err := OwnerFromToken(makeToken(t, "alice", now.Add(time.Hour)), now)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	_, err = OwnerFromToken(makeToken(t, "alice", now.Add(-time.Hour)), now)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	_, err = OwnerFromToken(makeToken(t, "", now.Add(time.Hour)), now)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = OwnerFromToken("garbage", now)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestLoginSessionLogout(t *testing.T) {
	db := setupDB(t)
	a := NewAuthService(nil, db)
	ctx := context.Background()

	_, _, err := a.Session(ctx)
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)

	token := makeToken(t, "alice", time.Now().Add(time.Hour))
	owner, err := a.Login(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	gotToken, gotOwner, err := a.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, gotToken)
	assert.Equal(t, "alice", gotOwner)

	require.NoError(t, a.Logout(ctx))
	_, _, err = a.Session(ctx)
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)
}

func TestLoginRejectsBadToken(t *testing.T) {
	a := NewAuthService(nil, setupDB(t))
	_, err := a.Login(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestPingDelegates(t *testing.T) {
	db := setupDB(t)

	_, err := NewAuthService(nil, db).Ping(context.Background())
	assert.ErrorIs(t, err, client.ErrUnavailable)

	ts, err := NewAuthService(&fakeClient{pingTime: "2024-03-01T12:00:00.000Z"}, db).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", ts)

	_, err = NewAuthService(&fakeClient{pingErr: client.ErrUnavailable}, db).Ping(context.Background())
	assert.ErrorIs(t, err, client.ErrUnavailable)
}
