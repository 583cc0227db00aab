package transport

import (
	"errors"
	"io"
	"net/http"

	"pureskin-gateway/internal/engine"
	"pureskin-gateway/internal/middleware"
	"pureskin-gateway/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DupeSearchRequest represents the duplicate-search request payload
type DupeSearchRequest struct {
	Ingredients string  `json:"ingredients" validate:"required,min=5"`
	Brand       string  `json:"brand"`
	ProductType string  `json:"product_type"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category"`
}

// SentimentRequest represents the review-sentiment request payload
type SentimentRequest struct {
	Text     string `json:"text" validate:"required"`
	SkinType string `json:"skin_type"`
}

// QualityAnalysisRequest represents the quality-analysis request payload
type QualityAnalysisRequest struct {
	ProductName string `json:"product_name" validate:"required"`
	BrandName   string `json:"brand_name"`
	Ingredients string `json:"ingredients"`
}

// RecommendationRequest represents the recommendation request payload
type RecommendationRequest struct {
	SkinType string   `json:"skin_type" validate:"required"`
	MaxPrice *float64 `json:"max_price,omitempty" validate:"omitempty,gte=0"`
	Category *string  `json:"category,omitempty"`
}

// AnalysisHandler proxies analysis requests to the external engine
type AnalysisHandler struct {
	analysisService service.AnalysisService
	maxUploadBytes  int64
	logger          *zap.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler
func NewAnalysisHandler(analysisService service.AnalysisService, maxUploadBytes int64, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

// RegisterRoutes registers all analysis routes. The routes are public;
// optionalAuth attaches an identity when a bearer token is present so
// duplicate-search results can be annotated with the caller's favorites.
func (h *AnalysisHandler) RegisterRoutes(r chi.Router, optionalAuth func(http.Handler) http.Handler) {
	r.Route("/analysis", func(r chi.Router) {
		r.With(optionalAuth).Post("/dupes", h.FindDuplicates)
		r.Post("/sentiment", h.AnalyzeSentiment)
		r.Post("/scan", h.ScanImage)
		r.Post("/quality", h.AnalyzeQuality)
		r.Post("/recommend", h.Recommend)
		r.Get("/filters", h.Filters)
	})
}

// FindDuplicates handles duplicate-product search
func (h *AnalysisHandler) FindDuplicates(w http.ResponseWriter, r *http.Request) {
	var req DupeSearchRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Dupe search validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Anonymous callers get uuid.Nil and skip favorite annotation.
	ownerID := uuid.Nil
	if user, ok := middleware.GetIdentity(r.Context()); ok {
		ownerID = user.ID
	}

	category := req.Category
	if category == "" {
		category = "All"
	}

	result, err := h.analysisService.FindDuplicates(r.Context(), ownerID, service.DupeSearchParams{
		Ingredients: req.Ingredients,
		Brand:       req.Brand,
		ProductType: req.ProductType,
		Price:       req.Price,
		Category:    category,
	})
	if err != nil {
		h.respondWithAnalysisError(w, "Dupe search failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// AnalyzeSentiment handles review sentiment analysis. Engine failures have
// already been degraded to a successful "unavailable" result downstream.
func (h *AnalysisHandler) AnalyzeSentiment(w http.ResponseWriter, r *http.Request) {
	var req SentimentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Sentiment validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.analysisService.AnalyzeSentiment(r.Context(), req.Text, req.SkinType)
	if err != nil {
		h.respondWithAnalysisError(w, "Sentiment analysis failed", err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// ScanImage handles image scan uploads (multipart field "file", bounded size)
func (h *AnalysisHandler) ScanImage(w http.ResponseWriter, r *http.Request) {
	// Bound the whole request body; multipart framing gets a little headroom
	// beyond the payload limit so the limit check below stays authoritative.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "image payload exceeds upload limit")
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	// Read at most one byte past the limit; anything longer is rejected
	// before the engine is contacted.
	payload, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("Failed to read uploaded image", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if int64(len(payload)) > h.maxUploadBytes {
		middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "image payload exceeds upload limit")
		return
	}

	result, err := h.analysisService.ScanImage(r.Context(), payload, header.Filename)
	if err != nil {
		h.respondWithAnalysisError(w, "Image scan failed", err)
		return
	}

	respondWithRawJSON(w, http.StatusOK, result)
}

// AnalyzeQuality handles product quality analysis
func (h *AnalysisHandler) AnalyzeQuality(w http.ResponseWriter, r *http.Request) {
	var req QualityAnalysisRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Quality analysis validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.analysisService.AnalyzeQuality(r.Context(), req.ProductName, req.BrandName, req.Ingredients)
	if err != nil {
		h.respondWithAnalysisError(w, "Quality analysis failed", err)
		return
	}

	respondWithRawJSON(w, http.StatusOK, result)
}

// Recommend handles skin-type product recommendations
func (h *AnalysisHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendationRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Recommendation validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.analysisService.Recommend(r.Context(), req.SkinType, req.MaxPrice, req.Category)
	if err != nil {
		h.respondWithAnalysisError(w, "Recommendation failed", err)
		return
	}

	respondWithRawJSON(w, http.StatusOK, result)
}

// Filters handles fetching the engine's category/brand/type lists
func (h *AnalysisHandler) Filters(w http.ResponseWriter, r *http.Request) {
	result, err := h.analysisService.Filters(r.Context())
	if err != nil {
		h.respondWithAnalysisError(w, "Filters fetch failed", err)
		return
	}

	respondWithRawJSON(w, http.StatusOK, result)
}

// respondWithAnalysisError maps the normalized engine taxonomy onto the
// client-facing status codes. Raw transport detail never reaches the client.
func (h *AnalysisHandler) respondWithAnalysisError(w http.ResponseWriter, msg string, err error) {
	var rejected *engine.RejectedError

	switch {
	case errors.Is(err, service.ErrInvalidAnalysisInput):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rejected):
		// Upstream rejected the input; its message is surfaced verbatim.
		middleware.RespondWithError(w, http.StatusBadRequest, rejected.Message)
	case errors.Is(err, engine.ErrPayloadTooLarge):
		middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, "image payload exceeds upload limit")
	case errors.Is(err, engine.ErrTimeout):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "analysis engine timed out")
	case errors.Is(err, engine.ErrBusy):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "analysis engine is busy, try again shortly")
	case errors.Is(err, engine.ErrUnavailable):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "analysis engine is unavailable")
	default:
		h.logger.Error(msg, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondWithRawJSON relays an engine payload without re-encoding it.
func respondWithRawJSON(w http.ResponseWriter, statusCode int, payload engine.RawResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(payload)
}
