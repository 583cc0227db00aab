package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pureskin-gateway/internal/domain"
	"pureskin-gateway/internal/repository"
	"pureskin-gateway/internal/service"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// Mock repositories for testing
type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	for email, user := range m.users {
		if user.ID == id {
			delete(m.users, email)
			return nil
		}
	}
	return repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func newUserHandlerForTest() *UserHandler {
	userService := service.NewUserService(newMockUserRepository(), newMockRefreshTokenRepository(), "test-secret")
	return NewUserHandler(userService, zap.NewNop())
}

// Feature: pureskin-gateway, Property 5: Invalid registration data is rejected
// Validates: Requirements 1.5
func TestProperty_InvalidRegistrationDataIsRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("registration with invalid data returns validation errors", prop.ForAll(
		func(invalidCase int) bool {
			handler := newUserHandlerForTest()

			var reqBody RegisterRequest

			// Generate different invalid cases
			switch invalidCase % 4 {
			case 0:
				// Empty email
				reqBody = RegisterRequest{Email: "", Password: "ValidPass123", Name: "Sam"}
			case 1:
				// Invalid email format
				reqBody = RegisterRequest{Email: "not-an-email", Password: "ValidPass123", Name: "Sam"}
			case 2:
				// Password too short
				reqBody = RegisterRequest{Email: "user@example.com", Password: "short", Name: "Sam"}
			case 3:
				// Missing name
				reqBody = RegisterRequest{Email: "user@example.com", Password: "ValidPass123", Name: ""}
			}

			body, _ := json.Marshal(reqBody)
			req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			handler.Register(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Logf("FAIL: Expected 400 for case %d, got %d", invalidCase%4, rec.Code)
				return false
			}

			return true
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: pureskin-gateway, Property 6: Registration responses never leak
// credential material
// Validates: Requirements 1.4
func TestProperty_RegistrationNeverLeaksPasswordHash(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("registration response carries no password material", prop.ForAll(
		func(email string, password string, name string) bool {
			handler := newUserHandlerForTest()

			body, _ := json.Marshal(RegisterRequest{Email: email, Password: password, Name: name})
			req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			handler.Register(rec, req)

			if rec.Code != http.StatusCreated {
				return true // Skip cases rejected by validation
			}

			raw := rec.Body.String()
			if strings.Contains(raw, password) {
				t.Logf("FAIL: Response contains the plaintext password")
				return false
			}
			if strings.Contains(raw, "password") || strings.Contains(raw, "$2a$") {
				t.Logf("FAIL: Response contains credential material: %s", raw)
				return false
			}

			return true
		},
		gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`),
		gen.RegexMatch(`[A-Za-z0-9!@#]{8,20}`),
		gen.RegexMatch(`[A-Z][a-z]{2,15}`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	handler := newUserHandlerForTest()

	register := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(RegisterRequest{
			Email:    "user@example.com",
			Password: "ValidPass123",
			Name:     "Sam",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Register(rec, req)
		return rec
	}

	if rec := register(); rec.Code != http.StatusCreated {
		t.Fatalf("first registration: expected 201, got %d", rec.Code)
	}
	if rec := register(); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate registration: expected 409, got %d", rec.Code)
	}
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	userService := service.NewUserService(newMockUserRepository(), newMockRefreshTokenRepository(), "test-secret")
	handler := NewUserHandler(userService, zap.NewNop())

	_, err := userService.Register(context.Background(), "user@example.com", "ValidPass123", "Sam")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	body, _ := json.Marshal(LoginRequest{Email: "user@example.com", Password: "WrongPass456"})
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}
