package transport

import (
	"errors"
	"net/http"

	"pureskin-gateway/internal/domain"
	"pureskin-gateway/internal/middleware"
	"pureskin-gateway/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddFavoriteRequest represents the add-favorite request payload
type AddFavoriteRequest struct {
	ProductKey    string   `json:"product_key"`
	ProductName   string   `json:"product_name" validate:"required"`
	BrandName     string   `json:"brand_name" validate:"required"`
	Price         float64  `json:"price" validate:"gte=0"`
	OriginalPrice *float64 `json:"original_price,omitempty" validate:"omitempty,gte=0"`
	Ingredients   string   `json:"ingredients"`
	Similarity    float64  `json:"similarity" validate:"gte=0,lte=1"`
	Category      string   `json:"category"`
	ProductType   string   `json:"product_type"`
	Source        string   `json:"source" validate:"omitempty,oneof=dupe-search scanner manual"`
	Notes         string   `json:"notes"`
}

// FavoriteResponse is a favorite with its derived savings fields.
type FavoriteResponse struct {
	*domain.Favorite
	Savings           float64 `json:"savings"`
	SavingsPercentage float64 `json:"savings_percentage"`
}

// AddFavoriteResponse carries the already-exists flag of the sync protocol:
// a duplicate add is reported as success so optimistic clients never roll
// back a favorite the server already has.
type AddFavoriteResponse struct {
	AlreadyExists bool             `json:"already_exists"`
	Favorite      FavoriteResponse `json:"favorite"`
}

// ListFavoritesResponse is the full-state read clients reload after any
// failed optimistic mutation.
type ListFavoritesResponse struct {
	Count     int                `json:"count"`
	Favorites []FavoriteResponse `json:"favorites"`
}

// RemoveFavoriteResponse confirms a delete. AlreadyRemoved marks the
// idempotent case where the favorite was gone before this call.
type RemoveFavoriteResponse struct {
	Removed        bool `json:"removed"`
	AlreadyRemoved bool `json:"already_removed,omitempty"`
}

// FavoriteHandler handles HTTP requests for favorite operations
type FavoriteHandler struct {
	favoriteService service.FavoriteService
	logger          *zap.Logger
}

// NewFavoriteHandler creates a new FavoriteHandler
func NewFavoriteHandler(favoriteService service.FavoriteService, logger *zap.Logger) *FavoriteHandler {
	return &FavoriteHandler{
		favoriteService: favoriteService,
		logger:          logger,
	}
}

// RegisterRoutes registers all favorite routes
func (h *FavoriteHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/favorites", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Add)
		r.Get("/", h.List)
		r.Delete("/{id}", h.Remove)
	})
}

// Add handles saving a favorite product
func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetIdentity(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AddFavoriteRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Add favorite validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	favorite, alreadyExists, err := h.favoriteService.Add(r.Context(), user.ID, service.FavoriteInput{
		ProductKey:    req.ProductKey,
		ProductName:   req.ProductName,
		BrandName:     req.BrandName,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Ingredients:   req.Ingredients,
		Similarity:    req.Similarity,
		Category:      req.Category,
		ProductType:   req.ProductType,
		Source:        domain.FavoriteSource(req.Source),
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondWithFavoriteError(w, "Add favorite failed", err)
		return
	}

	response := AddFavoriteResponse{
		AlreadyExists: alreadyExists,
		Favorite:      newFavoriteResponse(favorite),
	}

	if alreadyExists {
		h.logger.Info("Favorite already saved",
			zap.String("user_id", user.ID.String()),
			zap.String("product_key", favorite.ProductKey),
		)
		middleware.RespondWithJSON(w, http.StatusOK, response)
		return
	}

	h.logger.Info("Favorite added",
		zap.String("user_id", user.ID.String()),
		zap.String("favorite_id", favorite.ID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, response)
}

// List handles reading the caller's favorites, most recent first
func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetIdentity(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	favorites, err := h.favoriteService.List(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("List favorites failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}

	response := ListFavoritesResponse{
		Count:     len(favorites),
		Favorites: make([]FavoriteResponse, 0, len(favorites)),
	}
	for _, favorite := range favorites {
		response.Favorites = append(response.Favorites, newFavoriteResponse(favorite))
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Remove handles deleting a favorite. Removing an id that is already gone
// answers success so client retries converge instead of erroring.
func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetIdentity(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	favoriteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid favorite id")
		return
	}

	err = h.favoriteService.Remove(r.Context(), user.ID, favoriteID)
	switch err {
	case nil:
		h.logger.Info("Favorite removed",
			zap.String("user_id", user.ID.String()),
			zap.String("favorite_id", favoriteID.String()),
		)
		middleware.RespondWithJSON(w, http.StatusOK, RemoveFavoriteResponse{Removed: true})
	case service.ErrFavoriteNotFound:
		middleware.RespondWithJSON(w, http.StatusOK, RemoveFavoriteResponse{Removed: true, AlreadyRemoved: true})
	case service.ErrNotOwner:
		h.logger.Warn("Favorite removal blocked by ownership check",
			zap.String("user_id", user.ID.String()),
			zap.String("favorite_id", favoriteID.String()),
		)
		middleware.RespondWithError(w, http.StatusForbidden, "favorite belongs to another user")
	default:
		h.logger.Error("Remove favorite failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to remove favorite")
	}
}

func (h *FavoriteHandler) respondWithFavoriteError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, service.ErrInvalidFavorite) {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error(msg, zap.Error(err))
	middleware.RespondWithError(w, http.StatusInternalServerError, "failed to save favorite")
}

func newFavoriteResponse(favorite *domain.Favorite) FavoriteResponse {
	return FavoriteResponse{
		Favorite:          favorite,
		Savings:           favorite.Savings(),
		SavingsPercentage: favorite.SavingsPercentage(),
	}
}
