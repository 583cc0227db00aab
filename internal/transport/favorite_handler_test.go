package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pureskin-gateway/internal/domain"
	"pureskin-gateway/internal/middleware"
	"pureskin-gateway/internal/repository"
	"pureskin-gateway/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock favorite repository for testing
type mockFavoriteRepository struct {
	favorites map[uuid.UUID]*domain.Favorite
}

func newMockFavoriteRepository() *mockFavoriteRepository {
	return &mockFavoriteRepository{
		favorites: make(map[uuid.UUID]*domain.Favorite),
	}
}

func (m *mockFavoriteRepository) Create(ctx context.Context, favorite *domain.Favorite) error {
	for _, existing := range m.favorites {
		if existing.OwnerID == favorite.OwnerID && existing.ProductKey == favorite.ProductKey {
			return repository.ErrFavoriteAlreadyExists
		}
	}
	m.favorites[favorite.ID] = favorite
	return nil
}

func (m *mockFavoriteRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Favorite, error) {
	favorite, exists := m.favorites[id]
	if !exists {
		return nil, repository.ErrFavoriteNotFound
	}
	return favorite, nil
}

func (m *mockFavoriteRepository) FindByOwnerAndKey(ctx context.Context, ownerID uuid.UUID, productKey string) (*domain.Favorite, error) {
	for _, favorite := range m.favorites {
		if favorite.OwnerID == ownerID && favorite.ProductKey == productKey {
			return favorite, nil
		}
	}
	return nil, repository.ErrFavoriteNotFound
}

func (m *mockFavoriteRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Favorite, error) {
	owned := []*domain.Favorite{}
	for _, favorite := range m.favorites {
		if favorite.OwnerID == ownerID {
			owned = append(owned, favorite)
		}
	}
	return owned, nil
}

func (m *mockFavoriteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, exists := m.favorites[id]; !exists {
		return repository.ErrFavoriteNotFound
	}
	delete(m.favorites, id)
	return nil
}

// identityInjector stands in for the real auth middleware: it attaches a
// fixed verified user to every request.
func identityInjector(user *domain.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != nil {
				r = r.WithContext(middleware.WithIdentity(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newFavoriteRouter(repo *mockFavoriteRepository, user *domain.User) chi.Router {
	favoriteService := service.NewFavoriteService(repo)
	handler := NewFavoriteHandler(favoriteService, zap.NewNop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router, identityInjector(user))
	return router
}

func addFavoriteBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(AddFavoriteRequest{
		ProductName: "Niacinamide Serum",
		BrandName:   "The Ordinary",
		Price:       8.99,
		Similarity:  0.93,
		Source:      "dupe-search",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestAddFavoriteEndpoint(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(newMockFavoriteRepository(), user)

	req := httptest.NewRequest(http.MethodPost, "/favorites", addFavoriteBody(t))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AddFavoriteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.AlreadyExists)
	assert.Equal(t, user.ID, resp.Favorite.OwnerID)
	assert.Equal(t, "the-ordinary::niacinamide-serum", resp.Favorite.ProductKey)
}

func TestAddFavoriteTwiceAnswersOKWithFlag(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(newMockFavoriteRepository(), user)

	first := httptest.NewRequest(http.MethodPost, "/favorites", addFavoriteBody(t))
	first.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Repeating the add is success, not conflict: the client's optimistic
	// state and the server already agree.
	second := httptest.NewRequest(http.MethodPost, "/favorites", addFavoriteBody(t))
	second.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, second)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AddFavoriteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.AlreadyExists)
}

func TestAddFavoriteValidationFailure(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(newMockFavoriteRepository(), user)

	// Missing brand_name fails validation before the service is reached.
	req := httptest.NewRequest(http.MethodPost, "/favorites",
		bytes.NewBufferString(`{"product_name": "Serum", "price": 8.99}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddFavoriteRejectsUnknownSource(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(newMockFavoriteRepository(), user)

	req := httptest.NewRequest(http.MethodPost, "/favorites", bytes.NewBufferString(
		`{"product_name": "Serum", "brand_name": "Brand", "price": 1, "source": "imported"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFavoritesEndpoint(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	repo := newMockFavoriteRepository()
	router := newFavoriteRouter(repo, user)

	for i := 0; i < 3; i++ {
		body, err := json.Marshal(AddFavoriteRequest{
			ProductName: fmt.Sprintf("Serum %d", i),
			BrandName:   "The Ordinary",
			Price:       8.99,
		})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/favorites", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/favorites", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListFavoritesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Len(t, resp.Favorites, 3)
}

func TestListFavoritesOnlyShowsOwnRecords(t *testing.T) {
	repo := newMockFavoriteRepository()
	other := &domain.Favorite{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		ProductKey: "brand::product",
	}
	repo.favorites[other.ID] = other

	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(repo, user)

	req := httptest.NewRequest(http.MethodGet, "/favorites", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListFavoritesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestRemoveFavoriteEndpoint(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	repo := newMockFavoriteRepository()
	router := newFavoriteRouter(repo, user)

	addReq := httptest.NewRequest(http.MethodPost, "/favorites", addFavoriteBody(t))
	addReq.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, addReq)
	require.Equal(t, http.StatusCreated, rec.Code)

	var added AddFavoriteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))

	req := httptest.NewRequest(http.MethodDelete, "/favorites/"+added.Favorite.ID.String(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RemoveFavoriteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Removed)
	assert.False(t, resp.AlreadyRemoved)
	assert.Empty(t, repo.favorites)
}

func TestRemoveFavoriteAlreadyGone(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(newMockFavoriteRepository(), user)

	// Deleting something that was never there (or already deleted) still
	// answers success: retries and offline replays converge.
	req := httptest.NewRequest(http.MethodDelete, "/favorites/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RemoveFavoriteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Removed)
	assert.True(t, resp.AlreadyRemoved)
}

func TestRemoveForeignFavoriteIsForbidden(t *testing.T) {
	repo := newMockFavoriteRepository()
	foreign := &domain.Favorite{
		ID:         uuid.New(),
		OwnerID:    uuid.New(),
		ProductKey: "brand::product",
	}
	repo.favorites[foreign.ID] = foreign

	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(repo, user)

	req := httptest.NewRequest(http.MethodDelete, "/favorites/"+foreign.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, repo.favorites, 1, "foreign favorite must survive the attempt")
}

func TestRemoveFavoriteInvalidID(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}
	router := newFavoriteRouter(newMockFavoriteRepository(), user)

	req := httptest.NewRequest(http.MethodDelete, "/favorites/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFavoritesRequireIdentity(t *testing.T) {
	// No identity injected: the handlers answer 401 for every operation.
	router := newFavoriteRouter(newMockFavoriteRepository(), nil)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/favorites"},
		{http.MethodGet, "/favorites"},
		{http.MethodDelete, "/favorites/" + uuid.NewString()},
	} {
		req := httptest.NewRequest(tc.method, tc.path, addFavoriteBody(t))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}
