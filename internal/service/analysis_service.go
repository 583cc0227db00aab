package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"pureskin-gateway/internal/domain"
	"pureskin-gateway/internal/engine"
	"pureskin-gateway/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minIngredientsLength = 5

var ErrInvalidAnalysisInput = errors.New("invalid analysis input")

// SentimentUnavailable is the degraded result returned when the engine
// cannot be reached. Sentiment is advisory, not critical path, so callers
// get a successful answer instead of an upstream error.
var SentimentUnavailable = engine.ReviewResult{Sentiment: "unavailable", Confidence: 0}

// DupeSearchParams are the gateway-level inputs for a duplicate search.
// Brand names the searched product's own brand; matching results are
// excluded since they are the original line, not dupes.
type DupeSearchParams struct {
	Ingredients string
	Brand       string
	ProductType string
	Price       float64
	Category    string
}

// DupeSearchResult is the normalized duplicate-search answer.
type DupeSearchResult struct {
	Count   int                  `json:"count"`
	Results []engine.DupeProduct `json:"results"`
}

// AnalysisService fronts the external engine for the four analysis
// operations. It validates inputs locally, delegates transport and failure
// normalization to the engine client, and enriches duplicate-search results
// with the caller's favorites when an identity is known.
type AnalysisService interface {
	FindDuplicates(ctx context.Context, ownerID uuid.UUID, params DupeSearchParams) (*DupeSearchResult, error)
	AnalyzeSentiment(ctx context.Context, text, skinType string) (*engine.ReviewResult, error)
	ScanImage(ctx context.Context, payload []byte, filename string) (engine.RawResult, error)
	AnalyzeQuality(ctx context.Context, productName, brandName, ingredients string) (engine.RawResult, error)
	Recommend(ctx context.Context, skinType string, maxPrice *float64, category *string) (engine.RawResult, error)
	Filters(ctx context.Context) (engine.RawResult, error)
	EngineHealth(ctx context.Context) (*engine.HealthStatus, error)
}

type analysisService struct {
	engine       *engine.Client
	favoriteRepo repository.FavoriteRepository
	logger       *zap.Logger
}

// NewAnalysisService creates a new instance of AnalysisService
func NewAnalysisService(client *engine.Client, favoriteRepo repository.FavoriteRepository, logger *zap.Logger) AnalysisService {
	return &analysisService{
		engine:       client,
		favoriteRepo: favoriteRepo,
		logger:       logger,
	}
}

// FindDuplicates searches the engine for cheaper near-identical products.
// Results are annotated with is_favorite for an authenticated caller
// (ownerID != uuid.Nil); annotation failures are logged and swallowed since
// the enrichment is best-effort.
func (s *analysisService) FindDuplicates(ctx context.Context, ownerID uuid.UUID, params DupeSearchParams) (*DupeSearchResult, error) {
	ingredients := strings.TrimSpace(params.Ingredients)
	if utf8.RuneCountInString(ingredients) < minIngredientsLength {
		return nil, fmt.Errorf("%w: ingredients text must be at least %d characters", ErrInvalidAnalysisInput, minIngredientsLength)
	}

	req := engine.DupeRequest{
		Ingredients: ingredients,
		TargetPrice: params.Price,
	}
	if category := strings.TrimSpace(params.Category); category != "" && category != "All" {
		req.PrimaryCategory = &category
	}
	if productType := strings.TrimSpace(params.ProductType); productType != "" {
		req.SecondaryCategory = &productType
	}

	resp, err := s.engine.FindDupes(ctx, req)
	if err != nil {
		return nil, err
	}

	results := collectDupeProducts(resp)

	// A hit from the searched product's own brand is the original, not a
	// cheaper dupe; drop it when the caller named the brand.
	if brand := strings.TrimSpace(params.Brand); brand != "" {
		results = excludeBrand(results, brand)
	}

	if ownerID != uuid.Nil {
		s.annotateFavorites(ctx, ownerID, results)
	}

	return &DupeSearchResult{Count: len(results), Results: results}, nil
}

// collectDupeProducts flattens best_dupe plus alternatives into one ordered,
// deduplicated list. The best dupe leads when present.
func collectDupeProducts(resp *engine.DupeResponse) []engine.DupeProduct {
	results := []engine.DupeProduct{}
	seen := map[string]bool{}

	appendProduct := func(product engine.DupeProduct) {
		if product == nil {
			return
		}
		key := domain.ProductKeyFor(stringField(product, "brand_name"), stringField(product, "product_name"))
		if key != "" && seen[key] {
			return
		}
		seen[key] = true
		results = append(results, product)
	}

	appendProduct(resp.BestDupe)
	for _, product := range resp.Alternatives {
		appendProduct(product)
	}

	return results
}

// excludeBrand filters out results carrying the given brand name.
func excludeBrand(products []engine.DupeProduct, brand string) []engine.DupeProduct {
	filtered := make([]engine.DupeProduct, 0, len(products))
	for _, product := range products {
		if strings.EqualFold(strings.TrimSpace(stringField(product, "brand_name")), brand) {
			continue
		}
		filtered = append(filtered, product)
	}
	return filtered
}

// annotateFavorites marks results the owner has already saved. Any failure
// here degrades to unannotated results; the search itself stays valid.
func (s *analysisService) annotateFavorites(ctx context.Context, ownerID uuid.UUID, results []engine.DupeProduct) {
	favorites, err := s.favoriteRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Warn("Favorite annotation skipped",
			zap.String("owner_id", ownerID.String()),
			zap.Error(err),
		)
		return
	}

	saved := make(map[string]bool, len(favorites))
	for _, favorite := range favorites {
		saved[favorite.ProductKey] = true
	}

	for _, product := range results {
		key := domain.ProductKeyFor(stringField(product, "brand_name"), stringField(product, "product_name"))
		product["is_favorite"] = saved[key]
	}
}

// AnalyzeSentiment runs review sentiment analysis. Engine failures degrade
// to SentimentUnavailable instead of propagating: the caller always gets an
// answer.
func (s *analysisService) AnalyzeSentiment(ctx context.Context, text, skinType string) (*engine.ReviewResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: review text is required", ErrInvalidAnalysisInput)
	}
	if skinType == "" {
		skinType = "all"
	}

	result, err := s.engine.AnalyzeReview(ctx, engine.ReviewRequest{Text: text, SkinType: skinType})
	if err != nil {
		s.logger.Warn("Sentiment analysis degraded",
			zap.String("skin_type", skinType),
			zap.Error(err),
		)
		degraded := SentimentUnavailable
		return &degraded, nil
	}

	return result, nil
}

// ScanImage forwards an uploaded image to the engine's OCR scan.
func (s *analysisService) ScanImage(ctx context.Context, payload []byte, filename string) (engine.RawResult, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: image payload is required", ErrInvalidAnalysisInput)
	}
	return s.engine.ScanImage(ctx, payload, filename)
}

// AnalyzeQuality fetches the engine's product quality report.
func (s *analysisService) AnalyzeQuality(ctx context.Context, productName, brandName, ingredients string) (engine.RawResult, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidAnalysisInput)
	}

	return s.engine.AnalyzeQuality(ctx, engine.QualityRequest{
		ProductName: productName,
		BrandName:   strings.TrimSpace(brandName),
		Ingredients: strings.TrimSpace(ingredients),
	})
}

// Recommend relays skin-type product recommendations.
func (s *analysisService) Recommend(ctx context.Context, skinType string, maxPrice *float64, category *string) (engine.RawResult, error) {
	skinType = strings.TrimSpace(skinType)
	if skinType == "" {
		return nil, fmt.Errorf("%w: skin type is required", ErrInvalidAnalysisInput)
	}

	return s.engine.Recommend(ctx, engine.RecommendRequest{
		SkinType: skinType,
		MaxPrice: maxPrice,
		Category: category,
	})
}

// Filters relays the engine's category/brand/type lists.
func (s *analysisService) Filters(ctx context.Context) (engine.RawResult, error) {
	return s.engine.Filters(ctx)
}

// EngineHealth reports the engine's own health document.
func (s *analysisService) EngineHealth(ctx context.Context) (*engine.HealthStatus, error) {
	return s.engine.Health(ctx)
}

func stringField(product engine.DupeProduct, key string) string {
	value, _ := product[key].(string)
	return value
}
