package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = 11
	}
	return args.Error(0)
}

func newService(store auth.UserStore) (*auth.Service, *auth.PasswordHasher, *auth.TokenManager) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	tokens := auth.NewTokenManager("test-secret", "chatline-test", time.Hour)
	return auth.NewService(store, hasher, tokens), hasher, tokens
}

func TestPasswordHasher(t *testing.T) {
	h := auth.NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, h.Verify("s3cret", hash))
	assert.False(t, h.Verify("wrong", hash))
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m := auth.NewTokenManager("secret", "chatline", time.Hour)

	token, err := m.Issue(&models.User{ID: 42, Email: "a@x.com"})
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
}

func TestTokenManager_Rejections(t *testing.T) {
	m := auth.NewTokenManager("secret", "chatline", time.Hour)
	user := &models.User{ID: 42}

	other, err := auth.NewTokenManager("other-secret", "chatline", time.Hour).Issue(user)
	require.NoError(t, err)
	_, err = m.Verify(other)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	foreign, err := auth.NewTokenManager("secret", "someone-else", time.Hour).Issue(user)
	require.NoError(t, err)
	_, err = m.Verify(foreign)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expired, err := auth.NewTokenManager("secret", "chatline", -time.Minute).Issue(user)
	require.NoError(t, err)
	_, err = m.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": 42, "iss": "chatline"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(unsigned)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = m.Verify("garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRegister(t *testing.T) {
	store := new(MockUserStore)
	store.On("FindUserByEmail", mock.Anything, "ann@example.com").Return(nil, nil)
	store.On("CreateUser", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil)
	svc, hasher, _ := newService(store)

	user, err := svc.Register(context.Background(), auth.RegisterInput{
		FullName:  " Ann ",
		Email:     "Ann@Example.com",
		Password:  "pw",
		BirthDate: "1990-04-01",
	})

	require.NoError(t, err)
	assert.Equal(t, uint(11), user.ID)
	assert.Equal(t, "Ann", user.FullName)
	assert.Equal(t, "ann@example.com", user.Email)
	require.NotNil(t, user.BirthDate)
	assert.Equal(t, 1990, user.BirthDate.Year())
	assert.True(t, hasher.Verify("pw", user.PasswordHash))
	store.AssertExpectations(t)
}

func TestRegister_Validation(t *testing.T) {
	cases := []struct {
		name string
		in   auth.RegisterInput
	}{
		{"missing name", auth.RegisterInput{Email: "a@x.com", Password: "pw"}},
		{"missing email", auth.RegisterInput{FullName: "A", Password: "pw"}},
		{"bad email", auth.RegisterInput{FullName: "A", Email: "not-an-email", Password: "pw"}},
		{"missing password", auth.RegisterInput{FullName: "A", Email: "a@x.com"}},
		{"long password", auth.RegisterInput{FullName: "A", Email: "a@x.com", Password: strings.Repeat("p", 73)}},
		{"bad birth date", auth.RegisterInput{FullName: "A", Email: "a@x.com", Password: "pw", BirthDate: "yesterday"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := new(MockUserStore)
			svc, _, _ := newService(store)

			_, err := svc.Register(context.Background(), tc.in)

			assert.ErrorIs(t, err, apperr.ErrValidation)
			store.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	store := new(MockUserStore)
	store.On("FindUserByEmail", mock.Anything, "a@x.com").Return(&models.User{ID: 1}, nil)
	svc, _, _ := newService(store)

	_, err := svc.Register(context.Background(), auth.RegisterInput{FullName: "A", Email: "a@x.com", Password: "pw"})

	assert.ErrorIs(t, err, apperr.ErrDuplicate)
	store.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
}

func TestRegister_RaceLosesOnUniqueIndex(t *testing.T) {
	store := new(MockUserStore)
	store.On("FindUserByEmail", mock.Anything, "a@x.com").Return(nil, nil)
	store.On("CreateUser", mock.Anything, mock.Anything).Return(apperr.Duplicate("email a@x.com is already registered"))
	svc, _, _ := newService(store)

	_, err := svc.Register(context.Background(), auth.RegisterInput{FullName: "A", Email: "a@x.com", Password: "pw"})

	assert.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestLogin(t *testing.T) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("pw")
	require.NoError(t, err)
	stored := &models.User{ID: 5, Email: "a@x.com", PasswordHash: hash}

	store := new(MockUserStore)
	store.On("FindUserByEmail", mock.Anything, "a@x.com").Return(stored, nil)
	store.On("FindUserByEmail", mock.Anything, "nobody@x.com").Return(nil, nil)
	svc, _, tokens := newService(store)
	ctx := context.Background()

	token, user, err := svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, uint(5), user.ID)
	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(5), claims.UserID)

	id, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, uint(5), id)

	_, _, err = svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrAuth)

	_, _, err = svc.Login(ctx, "nobody@x.com", "pw")
	assert.ErrorIs(t, err, apperr.ErrAuth)

	_, _, err = svc.Login(ctx, "", "pw")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Authenticate("garbage")
	assert.ErrorIs(t, err, apperr.ErrAuth)
}
