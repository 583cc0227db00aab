package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pureskin-gateway/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrFavoriteNotFound = errors.New("favorite not found")

	// ErrFavoriteAlreadyExists signals the (owner_id, product_key) unique
	// constraint. Callers treat it as an idempotent-success condition, not
	// a failure.
	ErrFavoriteAlreadyExists = errors.New("favorite already exists for this product")
)

// FavoriteRepository defines the interface for favorite data access.
// It is the sole owner of the per-owner product uniqueness constraint;
// no other write path to the favorites table exists.
type FavoriteRepository interface {
	Create(ctx context.Context, favorite *domain.Favorite) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Favorite, error)
	FindByOwnerAndKey(ctx context.Context, ownerID uuid.UUID, productKey string) (*domain.Favorite, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Favorite, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type favoriteRepository struct {
	db *sql.DB
}

// NewFavoriteRepository creates a new instance of FavoriteRepository
func NewFavoriteRepository(db *sql.DB) FavoriteRepository {
	return &favoriteRepository{db: db}
}

const favoriteColumns = `id, owner_id, product_key, product_name, brand_name, price,
	original_price, ingredients, similarity, category, product_type, source, notes, added_at`

func scanFavorite(row interface{ Scan(...interface{}) error }) (*domain.Favorite, error) {
	favorite := &domain.Favorite{}
	err := row.Scan(
		&favorite.ID,
		&favorite.OwnerID,
		&favorite.ProductKey,
		&favorite.ProductName,
		&favorite.BrandName,
		&favorite.Price,
		&favorite.OriginalPrice,
		&favorite.Ingredients,
		&favorite.Similarity,
		&favorite.Category,
		&favorite.ProductType,
		&favorite.Source,
		&favorite.Notes,
		&favorite.AddedAt,
	)
	return favorite, err
}

// Create inserts a new favorite. A concurrent insert for the same
// (owner_id, product_key) loses the race at the unique constraint and is
// reported as ErrFavoriteAlreadyExists so the caller can fall back to the
// winning row.
func (r *favoriteRepository) Create(ctx context.Context, favorite *domain.Favorite) error {
	query := `
		INSERT INTO favorites (id, owner_id, product_key, product_name, brand_name, price,
			original_price, ingredients, similarity, category, product_type, source, notes, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		favorite.ID,
		favorite.OwnerID,
		favorite.ProductKey,
		favorite.ProductName,
		favorite.BrandName,
		favorite.Price,
		favorite.OriginalPrice,
		favorite.Ingredients,
		favorite.Similarity,
		favorite.Category,
		favorite.ProductType,
		favorite.Source,
		favorite.Notes,
		favorite.AddedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrFavoriteAlreadyExists
		}
		return fmt.Errorf("failed to create favorite: %w", err)
	}

	return nil
}

// FindByID retrieves a favorite by ID using parameterized queries
func (r *favoriteRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Favorite, error) {
	query := fmt.Sprintf(`SELECT %s FROM favorites WHERE id = $1`, favoriteColumns)

	favorite, err := scanFavorite(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFavoriteNotFound
		}
		return nil, fmt.Errorf("failed to find favorite by ID: %w", err)
	}

	return favorite, nil
}

// FindByOwnerAndKey retrieves an owner's favorite by its canonical product key.
func (r *favoriteRepository) FindByOwnerAndKey(ctx context.Context, ownerID uuid.UUID, productKey string) (*domain.Favorite, error) {
	query := fmt.Sprintf(`SELECT %s FROM favorites WHERE owner_id = $1 AND product_key = $2`, favoriteColumns)

	favorite, err := scanFavorite(r.db.QueryRowContext(ctx, query, ownerID, productKey))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFavoriteNotFound
		}
		return nil, fmt.Errorf("failed to find favorite by product key: %w", err)
	}

	return favorite, nil
}

// ListByOwner retrieves all favorites for an owner, most recently added first.
func (r *favoriteRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Favorite, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM favorites
		WHERE owner_id = $1
		ORDER BY added_at DESC, id DESC
	`, favoriteColumns)

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	favorites := []*domain.Favorite{}
	for rows.Next() {
		favorite, err := scanFavorite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favorites = append(favorites, favorite)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorites: %w", err)
	}

	return favorites, nil
}

// Delete removes a favorite by ID using parameterized queries
func (r *favoriteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrFavoriteNotFound
	}

	return nil
}
