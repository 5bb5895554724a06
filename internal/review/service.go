package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/estimate-analyzer/internal/classify"
	"github.com/zombor/estimate-analyzer/internal/normalize"
	"github.com/zombor/estimate-analyzer/internal/scanning"
	"github.com/zombor/estimate-analyzer/internal/supervisor"
)

// Operation names recorded in the supervisor log
const (
	opLoadDocument   = "load_document"
	opExtraction     = "ai_extraction"
	opNormalization  = "normalization"
	opClassification = "classification"
	opPersist        = "persist_result"
	opCheckpoint     = "runtime_checkpoint"
)

// IDGenerator generates unique IDs for reviews
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config tunes the pipeline. Zero values select the defaults.
type Config struct {
	// MaxRuntime is the ceiling checked after extraction and after classification
	MaxRuntime time.Duration
	// RetryAttempts is the total number of attempts AnalyzeWithRetry makes
	RetryAttempts int
}

// AnalyzeRequest identifies the document to analyze and who produced it
type AnalyzeRequest struct {
	ReviewID string
	Document DocumentRef
	Source   scanning.DocumentType
}

func (r AnalyzeRequest) validate() error {
	if strings.TrimSpace(r.ReviewID) == "" {
		return fmt.Errorf("%w: review id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.Document.Key) == "" {
		return fmt.Errorf("%w: document key is required", ErrInvalidInput)
	}
	if _, err := scanning.ParseDocumentType(string(r.Source)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// Service runs the estimate analysis pipeline and manages stored reviews
type Service struct {
	db          DB
	extractor   scanning.Extractor
	storage     Storage
	supervisor  *supervisor.Supervisor
	config      Config
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor scanning.Extractor, storage Storage, sup *supervisor.Supervisor, cfg Config) *Service {
	return NewServiceWithDeps(db, extractor, storage, sup, cfg, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, storage Storage, sup *supervisor.Supervisor, cfg Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	if sup == nil {
		sup = supervisor.New(supervisor.Config{})
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		supervisor:  sup,
		config:      cfg,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Analyze runs one document through extraction, normalization and
// classification, then stores the result under req.ReviewID.
//
// A rejected classification returns ErrClassificationRejected and stores
// nothing. When only the final write fails the built review is returned with
// ErrStorageFailed so the caller can retry SaveReview.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*Review, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	start := s.supervisor.Now()
	meta := supervisor.Metadata{
		"review_id": req.ReviewID,
		"source":    string(req.Source),
	}

	data, err := supervisor.Track(s.supervisor, opLoadDocument, meta, func() ([]byte, error) {
		return s.storage.Get(req.Document.Key)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: loading document: %w", ErrStorageFailed, err)
	}

	doc := scanning.Document{
		Data:        data,
		ContentType: req.Document.ContentType,
		Type:        req.Source,
	}

	s.supervisor.Start(opExtraction, meta)
	text, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		s.supervisor.End(opExtraction, false, err, nil)
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	s.supervisor.End(opExtraction, true, nil, supervisor.Metadata{"response_bytes": len(text)})

	if err := s.checkpoint(start, opExtraction, meta); err != nil {
		return nil, fmt.Errorf("after extraction: %w", err)
	}

	result, err := supervisor.Track(s.supervisor, opNormalization, meta, func() (normalize.AnalysisResult, error) {
		raw, err := normalize.Decode([]byte(text))
		if err != nil {
			return normalize.AnalysisResult{}, err
		}
		return normalize.Normalize(raw, s.timeSource.Now()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	verdict, err := supervisor.Track(s.supervisor, opClassification, meta, func() (classify.Verdict, error) {
		pageText, err := scanning.DocumentText(doc)
		if err != nil {
			slog.Warn("Could not read document text layer", "review_id", req.ReviewID, "error", err)
		}
		return classify.Classify(pageText, result.Descriptions())
	})
	if err != nil {
		slog.Info("Classification rejected",
			"review_id", req.ReviewID,
			"classification", verdict.Classification,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrClassificationRejected, err)
	}

	if err := s.checkpoint(start, opClassification, meta); err != nil {
		return nil, fmt.Errorf("after classification: %w", err)
	}

	now := s.timeSource.Now()
	review := &Review{
		ID:             req.ReviewID,
		Document:       req.Document,
		Source:         req.Source,
		Analysis:       result,
		Classification: verdict,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	existing, err := s.db.GetReview(req.ReviewID)
	switch {
	case err == nil:
		review.CreatedAt = existing.CreatedAt
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%w: loading existing review: %w", ErrStorageFailed, err)
	}

	err = s.supervisor.Track(opPersist, meta, func() error {
		return s.db.SaveReview(review)
	})
	if err != nil {
		return review, fmt.Errorf("%w: saving review: %w", ErrStorageFailed, err)
	}

	slog.Info("Analysis complete",
		"review_id", review.ID,
		"classification", verdict.Classification,
		"confidence", verdict.Confidence,
		"items", result.Summary.ItemCount,
		"elapsed_ms", s.supervisor.Now().Sub(start).Milliseconds(),
	)
	return review, nil
}

// checkpoint enforces the runtime ceiling and logs the check as its own
// operation with the elapsed time.
func (s *Service) checkpoint(start time.Time, after string, meta supervisor.Metadata) error {
	s.supervisor.Start(opCheckpoint, meta)
	err := s.supervisor.EnforceMaxRuntime(start, s.config.MaxRuntime)
	s.supervisor.End(opCheckpoint, err == nil, err, supervisor.Metadata{
		"after":      after,
		"elapsed_ms": s.supervisor.Now().Sub(start).Milliseconds(),
	})
	return err
}

// AnalyzeWithRetry calls Analyze up to Config.RetryAttempts times. Only
// extraction failures are retried; each retry is recorded on the supervisor.
func (s *Service) AnalyzeWithRetry(ctx context.Context, req AnalyzeRequest) (*Review, error) {
	for attempt := 1; ; attempt++ {
		review, err := s.Analyze(ctx, req)
		if err == nil || !errors.Is(err, ErrExtractionFailed) || attempt >= s.config.RetryAttempts {
			return review, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		s.supervisor.RecordRetry(opExtraction, attempt, err)
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	// Keep only alphanumeric, spaces, hyphens, and underscores
	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = strings.TrimSpace(reg.ReplaceAllString(base, " "))

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "estimate"
	}

	return base + strings.ToLower(ext)
}

// Upload stores a document under a fresh review ID and analyzes it. The
// stored document is removed again unless a review was built.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, contentType string, source scanning.DocumentType) (*Review, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidInput)
	}
	if _, err := scanning.ParseDocumentType(string(source)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	id := s.idGenerator.Generate()
	key, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("%w: saving document: %w", ErrStorageFailed, err)
	}

	review, err := s.AnalyzeWithRetry(ctx, AnalyzeRequest{
		ReviewID: id,
		Document: DocumentRef{Key: key, ContentType: contentType, Filename: filename},
		Source:   source,
	})
	if err != nil {
		slog.Error("Failed to analyze estimate",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if review == nil {
			if delErr := s.storage.Delete(key); delErr != nil {
				slog.Warn("Failed to delete file", "key", key, "error", delErr)
			}
		}
		return review, err
	}
	return review, nil
}

// Reanalyze runs the pipeline again on a stored review's document and
// replaces the stored result.
func (s *Service) Reanalyze(ctx context.Context, id string) (*Review, error) {
	existing, err := s.GetReview(id)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeWithRetry(ctx, AnalyzeRequest{
		ReviewID: existing.ID,
		Document: existing.Document,
		Source:   existing.Source,
	})
}

// SaveReview stores a review built by a run whose final write failed
func (s *Service) SaveReview(review *Review) error {
	if err := s.db.SaveReview(review); err != nil {
		return fmt.Errorf("%w: saving review: %w", ErrStorageFailed, err)
	}
	return nil
}

// GetReview retrieves a review by ID
func (s *Service) GetReview(id string) (*Review, error) {
	review, err := s.db.GetReview(id)
	if err != nil {
		return nil, fmt.Errorf("getting review: %w", err)
	}
	return review, nil
}

// ListReviews returns all reviews
func (s *Service) ListReviews() ([]*Review, error) {
	reviews, err := s.db.ListReviews()
	if err != nil {
		return nil, fmt.Errorf("%w: listing reviews: %w", ErrStorageFailed, err)
	}
	return reviews, nil
}

// DeleteReview removes a review and its document
func (s *Service) DeleteReview(id string) error {
	review, err := s.GetReview(id)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(review.Document.Key); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "key", review.Document.Key, "error", err)
	}

	if err := s.db.DeleteReview(id); err != nil {
		return fmt.Errorf("%w: deleting review: %w", ErrStorageFailed, err)
	}
	return nil
}

// GetDocument returns a review's original document and its content type
func (s *Service) GetDocument(id string) ([]byte, string, error) {
	review, err := s.GetReview(id)
	if err != nil {
		return nil, "", err
	}

	data, err := s.storage.Get(review.Document.Key)
	if err != nil {
		return nil, "", fmt.Errorf("%w: getting document: %w", ErrStorageFailed, err)
	}

	return data, review.Document.ContentType, nil
}

// Classify runs the keyword classifier on caller-supplied text.
func (s *Service) Classify(text string, lineItems []string) (classify.Verdict, error) {
	return classify.Classify(text, lineItems)
}

// OperationsSummary aggregates the supervisor log
func (s *Service) OperationsSummary() supervisor.Summary {
	return s.supervisor.Summary()
}

// Operations returns the supervisor log, oldest first
func (s *Service) Operations() []supervisor.Entry {
	return s.supervisor.Entries()
}

// ClearOperations empties the supervisor log
func (s *Service) ClearOperations() {
	s.supervisor.Clear()
}
