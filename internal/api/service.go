package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/database"
	"orgrisk-backend/pkg/api"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Service serves the analyze/compare/history/similar endpoints over one
// loaded predictor. The predictor may be nil when artifacts are absent, in
// which case prediction endpoints answer 503 but health still responds.
type Service struct {
	db        *gorm.DB
	predictor *core.Predictor
}

func NewService(db *gorm.DB, predictor *core.Predictor) *Service {
	return &Service{db: db, predictor: predictor}
}

func (s *Service) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(s.Health))
	r.Route("/analyze", func(r chi.Router) {
		r.Post("/", RestHandler(s.Analyze))
		r.Post("/compare", RestHandler(s.Compare))
	})
	r.Get("/history", RestHandler(s.History))
	r.Get("/similar", RestHandler(s.Similar))
}

func (s *Service) Health(r *http.Request) (any, error) {
	return api.HealthResponse{Status: "ok", ModelsLoaded: s.predictor != nil}, nil
}

func (s *Service) Analyze(r *http.Request) (any, error) {
	if s.predictor == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "models are not loaded")
	}
	req, err := ParseRequest[api.AnalyzeRequest](r)
	if err != nil {
		return nil, err
	}
	if req.SimilarFilter != nil && strings.TrimSpace(*req.SimilarFilter) != "" {
		if _, err := core.ParseQuery(*req.SimilarFilter); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid filter expression: %v", err)
		}
	}
	save, err := saveParam(r)
	if err != nil {
		return nil, err
	}

	resp, err := s.predictor.Analyze(req)
	if err != nil {
		return nil, mapPredictionError(err)
	}

	if save {
		s.saveRun(r, database.ModeAnalyze, req.PostText, nil, resp)
	}
	return resp, nil
}

func (s *Service) Compare(r *http.Request) (any, error) {
	if s.predictor == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "models are not loaded")
	}
	req, err := ParseRequest[api.CompareRequest](r)
	if err != nil {
		return nil, err
	}
	save, err := saveParam(r)
	if err != nil {
		return nil, err
	}

	resp, err := s.predictor.Compare(req.BaselineText, req.VariantText)
	if err != nil {
		return nil, mapPredictionError(err)
	}

	if save {
		s.saveRun(r, database.ModeCompare, req.BaselineText, &req.VariantText, resp)
	}
	return resp, nil
}

func (s *Service) History(r *http.Request) (any, error) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			return nil, CodedErrorf(http.StatusBadRequest, "limit must be an integer between 1 and %d", maxHistoryLimit)
		}
		limit = parsed
	}

	runs, err := database.FetchHistory(r.Context(), s.db, limit)
	if err != nil {
		slog.Error("error fetching run history", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving run history")
	}

	rows := make([]api.HistoryRow, len(runs))
	for i, run := range runs {
		rows[i] = api.HistoryRow{
			ID:           run.ID,
			CreatedAtISO: run.CreatedAt.UTC().Format(time.RFC3339),
			Mode:         run.Mode,
			BaselineText: run.BaselineText,
			VariantText:  run.VariantText,
			Response:     []byte(run.Response),
		}
	}
	return api.HistoryResponse{Rows: rows, Count: len(rows)}, nil
}

func (s *Service) Similar(r *http.Request) (any, error) {
	if s.predictor == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "models are not loaded")
	}
	query, err := ParseRequestQueryParams[api.SimilarQuery](r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query.Filter) != "" {
		if _, err := core.ParseQuery(query.Filter); err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid filter expression: %v", err)
		}
	}

	matches, err := s.predictor.Similar(query.Text, query.K, query.Filter)
	if err != nil {
		if errors.Is(err, core.ErrMissingArtifact) {
			return nil, CodedErrorf(http.StatusNotFound, "similar posts unavailable: retriever artifacts were not trained")
		}
		return nil, mapPredictionError(err)
	}
	return api.SimilarResponse{Matches: matches, Count: len(matches)}, nil
}

// saveRun records the request in history. Persistence problems are logged
// rather than failing the response the caller already earned.
func (s *Service) saveRun(r *http.Request, mode, baselineText string, variantText *string, response any) {
	if s.db == nil {
		return
	}
	if _, err := database.SaveRun(r.Context(), s.db, mode, baselineText, variantText, response); err != nil {
		slog.Error("error saving run history", "mode", mode, "error", err)
	}
}

func saveParam(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("save")
	if raw == "" {
		return true, nil
	}
	save, err := strconv.ParseBool(raw)
	if err != nil {
		return false, CodedErrorf(http.StatusBadRequest, "save must be a boolean, got %q", raw)
	}
	return save, nil
}

func mapPredictionError(err error) error {
	switch {
	case errors.Is(err, core.ErrEmptyText), errors.Is(err, core.ErrEmptyQuery):
		return CodedError(http.StatusBadRequest, err)
	default:
		slog.Error("prediction failed", "error", err)
		return CodedErrorf(http.StatusInternalServerError, "prediction failed")
	}
}
