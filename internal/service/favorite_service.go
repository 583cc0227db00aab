package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pureskin-gateway/internal/domain"
	"pureskin-gateway/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrFavoriteNotFound = errors.New("favorite not found")

	// ErrNotOwner means the favorite exists but belongs to someone else.
	// Distinct from not-found so ownership violations stay auditable.
	ErrNotOwner = errors.New("favorite belongs to another user")

	ErrInvalidFavorite = errors.New("invalid favorite data")
)

// FavoriteInput carries the client-supplied fields for a new favorite.
type FavoriteInput struct {
	ProductKey    string
	ProductName   string
	BrandName     string
	Price         float64
	OriginalPrice *float64
	Ingredients   string
	Similarity    float64
	Category      string
	ProductType   string
	Source        domain.FavoriteSource
	Notes         string
}

// FavoriteService enforces the favorites invariants: per-owner product
// uniqueness and owner-only access. All mutations go through here.
type FavoriteService interface {
	// Add stores a favorite for the owner. When the owner already has the
	// product, the existing favorite is returned with alreadyExists=true;
	// this is idempotent success, never an error.
	Add(ctx context.Context, ownerID uuid.UUID, input FavoriteInput) (favorite *domain.Favorite, alreadyExists bool, err error)

	// List returns the owner's favorites, most recently added first.
	List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Favorite, error)

	// Remove deletes the owner's favorite. A missing favorite is
	// ErrFavoriteNotFound; an existing favorite owned by someone else is
	// ErrNotOwner and the record is left untouched.
	Remove(ctx context.Context, ownerID uuid.UUID, favoriteID uuid.UUID) error
}

type favoriteService struct {
	favoriteRepo repository.FavoriteRepository
}

// NewFavoriteService creates a new instance of FavoriteService
func NewFavoriteService(favoriteRepo repository.FavoriteRepository) FavoriteService {
	return &favoriteService{favoriteRepo: favoriteRepo}
}

func (s *favoriteService) Add(ctx context.Context, ownerID uuid.UUID, input FavoriteInput) (*domain.Favorite, bool, error) {
	favorite, err := buildFavorite(ownerID, input)
	if err != nil {
		return nil, false, err
	}

	// Pre-check so the common duplicate case answers without consuming an
	// insert. The unique constraint below still decides races.
	existing, err := s.favoriteRepo.FindByOwnerAndKey(ctx, ownerID, favorite.ProductKey)
	if err != nil && err != repository.ErrFavoriteNotFound {
		return nil, false, fmt.Errorf("failed to check existing favorite: %w", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	err = s.favoriteRepo.Create(ctx, favorite)
	if err == nil {
		return favorite, false, nil
	}

	// Lost the check-then-insert race: a concurrent Add for the same
	// (owner, product) won at the constraint. Surface the winning row as
	// idempotent success.
	if err == repository.ErrFavoriteAlreadyExists {
		existing, findErr := s.favoriteRepo.FindByOwnerAndKey(ctx, ownerID, favorite.ProductKey)
		if findErr != nil {
			return nil, false, fmt.Errorf("favorite exists but could not be loaded: %w", findErr)
		}
		return existing, true, nil
	}

	return nil, false, fmt.Errorf("failed to add favorite: %w", err)
}

func (s *favoriteService) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Favorite, error) {
	favorites, err := s.favoriteRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return favorites, nil
}

func (s *favoriteService) Remove(ctx context.Context, ownerID uuid.UUID, favoriteID uuid.UUID) error {
	favorite, err := s.favoriteRepo.FindByID(ctx, favoriteID)
	if err != nil {
		if err == repository.ErrFavoriteNotFound {
			return ErrFavoriteNotFound
		}
		return fmt.Errorf("failed to find favorite: %w", err)
	}

	// Ownership check before deletion. Never conflate with not-found.
	if favorite.OwnerID != ownerID {
		return ErrNotOwner
	}

	if err := s.favoriteRepo.Delete(ctx, favoriteID); err != nil {
		if err == repository.ErrFavoriteNotFound {
			// Deleted concurrently; the end state is what the caller wanted.
			return ErrFavoriteNotFound
		}
		return fmt.Errorf("failed to delete favorite: %w", err)
	}

	return nil
}

// buildFavorite validates and normalizes client input into a Favorite.
func buildFavorite(ownerID uuid.UUID, input FavoriteInput) (*domain.Favorite, error) {
	productName := strings.TrimSpace(input.ProductName)
	brandName := strings.TrimSpace(input.BrandName)

	if productName == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidFavorite)
	}
	if brandName == "" {
		return nil, fmt.Errorf("%w: brand name is required", ErrInvalidFavorite)
	}
	if input.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidFavorite)
	}
	if input.OriginalPrice != nil && *input.OriginalPrice < 0 {
		return nil, fmt.Errorf("%w: original price must not be negative", ErrInvalidFavorite)
	}
	if input.Similarity < 0 || input.Similarity > 1 {
		return nil, fmt.Errorf("%w: similarity must be between 0 and 1", ErrInvalidFavorite)
	}

	source := input.Source
	if source == "" {
		source = domain.SourceManual
	}
	if !domain.ValidSource(source) {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidFavorite, input.Source)
	}

	productKey := strings.TrimSpace(input.ProductKey)
	if productKey == "" {
		productKey = domain.ProductKeyFor(brandName, productName)
	}

	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = "Unknown"
	}
	productType := strings.TrimSpace(input.ProductType)
	if productType == "" {
		productType = "unknown"
	}

	return &domain.Favorite{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		ProductKey:    productKey,
		ProductName:   productName,
		BrandName:     brandName,
		Price:         input.Price,
		OriginalPrice: input.OriginalPrice,
		Ingredients:   strings.TrimSpace(input.Ingredients),
		Similarity:    input.Similarity,
		Category:      category,
		ProductType:   productType,
		Source:        source,
		Notes:         strings.TrimSpace(input.Notes),
		AddedAt:       time.Now(),
	}, nil
}
