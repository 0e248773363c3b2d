// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/mocks"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func notFoundErr() error {
	return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func testUser(t *testing.T, email, passwordHash string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(email, passwordHash)
	require.NoError(t, err)
	return user
}

// fakeRequest implements auth.Request from plain maps.
type fakeRequest struct {
	headers map[string]string
	cookies map[string]string
}

func (r fakeRequest) Header(name string) (string, bool) {
	v, ok := r.headers[name]
	return v, ok
}

func (r fakeRequest) Cookie(name string) (string, bool) {
	v, ok := r.cookies[name]
	return v, ok
}

func basicHeader(username, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+secret))
}

func TestNewService(t *testing.T) {
	t.Run("requires repository", func(t *testing.T) {
		hasher := mocks.NewMockPasswordHasher(t)
		_, err := auth.NewService(nil, hasher)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_DEPS")
	})

	t.Run("requires hasher", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		_, err := auth.NewService(users, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_DEPS")
	})

	t.Run("rejects nil logger option", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		_, err := auth.NewService(users, hasher, auth.WithLogger(nil))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_DEPS")
	})
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user with hashed password", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "alice@example.com").Return(nil, notFoundErr())
		hasher.On("Hash", "secret").Return("hashed-secret", nil)
		users.On("Create", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Email == "alice@example.com" && u.PasswordHash == "hashed-secret"
		})).Return(nil)

		user, err := svc.Register(ctx, "alice@example.com", "secret")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "hashed-secret", user.PasswordHash)
	})

	t.Run("duplicate email", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		existing := testUser(t, "alice@example.com", "hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(existing, nil)

		_, err = svc.Register(ctx, "alice@example.com", "secret")
		require.ErrorIs(t, err, auth.ErrAlreadyExists)
		errutil.AssertErrorCode(t, err, "AUTH_ALREADY_EXISTS")
	})

	t.Run("duplicate email raced past lookup", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "alice@example.com").Return(nil, notFoundErr())
		hasher.On("Hash", "secret").Return("hashed-secret", nil)
		users.On("Create", ctx, mock.Anything).
			Return(oops.Code("USER_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists))

		_, err = svc.Register(ctx, "alice@example.com", "secret")
		require.ErrorIs(t, err, auth.ErrAlreadyExists)
		errutil.AssertErrorCode(t, err, "AUTH_ALREADY_EXISTS")
	})

	t.Run("invalid email", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		_, err = svc.Register(ctx, "nope", "secret")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_EMAIL")
	})

	t.Run("hasher failure", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "alice@example.com").Return(nil, notFoundErr())
		hasher.On("Hash", "").Return("", auth.ErrEmptyPassword)

		_, err = svc.Register(ctx, "alice@example.com", "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_REGISTER_FAILED")
	})
}

func TestService_ValidLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		hasher.On("Verify", "secret", "stored-hash").Return(true, nil)

		assert.True(t, svc.ValidLogin(ctx, "alice@example.com", "secret"))
	})

	t.Run("wrong password", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		hasher.On("Verify", "wrong", "stored-hash").Return(false, nil)

		assert.False(t, svc.ValidLogin(ctx, "alice@example.com", "wrong"))
	})

	t.Run("unknown email still verifies a hash", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, notFoundErr())
		// The dummy verification runs even though the user does not exist.
		hasher.On("Verify", "secret", mock.AnythingOfType("string")).Return(true, nil)

		assert.False(t, svc.ValidLogin(ctx, "ghost@example.com", "secret"))
	})

	t.Run("repository failure reads as invalid", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "alice@example.com").Return(nil, errors.New("connection refused"))
		hasher.On("Verify", "secret", mock.AnythingOfType("string")).Return(false, nil)

		assert.False(t, svc.ValidLogin(ctx, "alice@example.com", "secret"))
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials yield a session token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		hasher.On("Verify", "secret", "stored-hash").Return(true, nil)
		users.On("SetSessionHash", ctx, user.ID, mock.AnythingOfType("*string")).Return(nil)

		token, err := svc.Login(ctx, "alice@example.com", "secret")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		hasher.On("Verify", "wrong", "stored-hash").Return(false, nil)

		_, err = svc.Login(ctx, "alice@example.com", "wrong")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})
}

func TestService_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the token hash, not the token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)

		var storedHash string
		users.On("SetSessionHash", ctx, user.ID, mock.AnythingOfType("*string")).
			Run(func(args mock.Arguments) {
				storedHash = *args.Get(2).(*string)
			}).
			Return(nil)

		token, err := svc.CreateSession(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, token)
		assert.NotEqual(t, token, storedHash)
		assert.Equal(t, auth.HashToken(token), storedHash)
	})

	t.Run("unknown email yields empty token and no error", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, notFoundErr())

		token, err := svc.CreateSession(ctx, "ghost@example.com")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		users.On("SetSessionHash", ctx, user.ID, mock.AnythingOfType("*string")).
			Return(errors.New("connection refused"))

		_, err = svc.CreateSession(ctx, "alice@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
	})
}

func TestService_UserFromSession(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves a live session", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetBySessionHash", ctx, auth.HashToken("tok")).Return(user, nil)

		got, err := svc.UserFromSession(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, user.Email, got.Email)
	})

	t.Run("empty token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		got, err := svc.UserFromSession(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetBySessionHash", ctx, auth.HashToken("tok")).Return(nil, notFoundErr())

		got, err := svc.UserFromSession(ctx, "tok")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestService_DestroySession(t *testing.T) {
	ctx := context.Background()

	t.Run("clears the session hash", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		id := ulid.Make()
		users.On("SetSessionHash", ctx, id, (*string)(nil)).Return(nil)

		require.NoError(t, svc.DestroySession(ctx, id))
	})

	t.Run("unknown user", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		id := ulid.Make()
		users.On("SetSessionHash", ctx, id, (*string)(nil)).Return(notFoundErr())

		err = svc.DestroySession(ctx, id)
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "AUTH_NOT_FOUND")
	})
}

func TestService_RequestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a token and stores its hash", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)

		var storedHash string
		users.On("SetResetHash", ctx, user.ID, mock.AnythingOfType("*string")).
			Run(func(args mock.Arguments) {
				storedHash = *args.Get(2).(*string)
			}).
			Return(nil)

		token, err := svc.RequestPasswordReset(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, token)
		assert.Equal(t, auth.HashToken(token), storedHash)
	})

	t.Run("unknown email", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, notFoundErr())

		_, err = svc.RequestPasswordReset(ctx, "ghost@example.com")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "AUTH_NOT_FOUND")
	})
}

func TestService_ConfirmPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("updates the password and consumes the token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "old-hash")
		users.On("GetByResetHash", ctx, auth.HashToken("reset-tok")).Return(user, nil)
		hasher.On("Hash", "new-password").Return("new-hash", nil)
		users.On("UpdatePassword", ctx, user.ID, "new-hash", false).Return(nil)

		require.NoError(t, svc.ConfirmPasswordReset(ctx, "reset-tok", "new-password"))
	})

	t.Run("session dropped when configured", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher, auth.WithSessionInvalidationOnReset())
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "old-hash")
		users.On("GetByResetHash", ctx, auth.HashToken("reset-tok")).Return(user, nil)
		hasher.On("Hash", "new-password").Return("new-hash", nil)
		users.On("UpdatePassword", ctx, user.ID, "new-hash", true).Return(nil)

		require.NoError(t, svc.ConfirmPasswordReset(ctx, "reset-tok", "new-password"))
	})

	t.Run("unknown token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByResetHash", ctx, auth.HashToken("bad-tok")).Return(nil, notFoundErr())

		err = svc.ConfirmPasswordReset(ctx, "bad-tok", "new-password")
		require.ErrorIs(t, err, auth.ErrInvalidToken)
		errutil.AssertErrorCode(t, err, "RESET_TOKEN_INVALID")
	})

	t.Run("empty token", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		err = svc.ConfirmPasswordReset(ctx, "", "new-password")
		require.ErrorIs(t, err, auth.ErrInvalidToken)
	})

	t.Run("empty password", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		err = svc.ConfirmPasswordReset(ctx, "reset-tok", "")
		require.ErrorIs(t, err, auth.ErrEmptyPassword)
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid basic credentials", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		hasher.On("Verify", "secret", "stored-hash").Return(true, nil)

		req := fakeRequest{headers: map[string]string{
			auth.AuthorizationHeader: basicHeader("alice@example.com", "secret"),
		}}

		got, err := svc.Authenticate(ctx, req)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alice@example.com", got.Email)
	})

	t.Run("silent failures resolve to no user", func(t *testing.T) {
		tests := []struct {
			name   string
			header string
			has    bool
		}{
			{name: "missing header", has: false},
			{name: "bearer scheme", header: "Bearer xyz", has: true},
			{name: "bad base64", header: "Basic %%%", has: true},
			{name: "no colon after decoding", header: "Basic " + base64.StdEncoding.EncodeToString([]byte("nocolon")), has: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users := mocks.NewMockUserRepository(t)
				hasher := mocks.NewMockPasswordHasher(t)
				svc, err := auth.NewService(users, hasher)
				require.NoError(t, err)

				req := fakeRequest{headers: map[string]string{}}
				if tt.has {
					req.headers[auth.AuthorizationHeader] = tt.header
				}

				got, err := svc.Authenticate(ctx, req)
				require.NoError(t, err)
				assert.Nil(t, got)
			})
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, notFoundErr())

		req := fakeRequest{headers: map[string]string{
			auth.AuthorizationHeader: basicHeader("ghost@example.com", "secret"),
		}}

		got, err := svc.Authenticate(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		user := testUser(t, "alice@example.com", "stored-hash")
		users.On("GetByEmail", ctx, "alice@example.com").Return(user, nil)
		hasher.On("Verify", "wrong", "stored-hash").Return(false, nil)

		req := fakeRequest{headers: map[string]string{
			auth.AuthorizationHeader: basicHeader("alice@example.com", "wrong"),
		}}

		got, err := svc.Authenticate(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("repository failure surfaces", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		svc, err := auth.NewService(users, hasher)
		require.NoError(t, err)

		users.On("GetByEmail", ctx, "alice@example.com").Return(nil, errors.New("connection refused"))

		req := fakeRequest{headers: map[string]string{
			auth.AuthorizationHeader: basicHeader("alice@example.com", "secret"),
		}}

		_, err = svc.Authenticate(ctx, req)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_LOOKUP_FAILED")
	})
}

// Pins the single-use contract: once a reset token is consumed, presenting
// it again fails.
func TestService_ResetTokenSingleUse(t *testing.T) {
	ctx := context.Background()

	users := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc, err := auth.NewService(users, hasher)
	require.NoError(t, err)

	user := testUser(t, "alice@example.com", "old-hash")

	users.On("GetByResetHash", ctx, auth.HashToken("tok")).Return(user, nil).Once()
	hasher.On("Hash", "pw1").Return("hash1", nil)
	users.On("UpdatePassword", ctx, user.ID, "hash1", false).Return(nil)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, "tok", "pw1"))

	// The token hash was cleared by UpdatePassword; the second lookup misses.
	users.On("GetByResetHash", ctx, auth.HashToken("tok")).Return(nil, notFoundErr()).Once()

	err = svc.ConfirmPasswordReset(ctx, "tok", "pw2")
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}
