package cmd

import (
	"context"
	"fmt"

	"github.com/amosdev/attendance/internal/attendance"
	"github.com/amosdev/attendance/internal/config"
	"github.com/amosdev/attendance/internal/detect"
	"github.com/amosdev/attendance/internal/feature"
	"github.com/amosdev/attendance/internal/gallery"
	"github.com/amosdev/attendance/internal/match"
	"github.com/amosdev/attendance/internal/recognizer"
	"github.com/amosdev/attendance/internal/similarity"
	"github.com/amosdev/attendance/internal/store"
)

// pipeline holds everything a command needs after setup.
type pipeline struct {
	cfg   *config.Config
	rec   *recognizer.Recognizer
	cache *gallery.Cache
	store store.Store
}

// buildPipeline loads configuration and assembles the recognition
// pipeline: feature backend, detector, gallery cache (loaded), matcher,
// ledger primed from today's persisted marks, and the store.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := feature.Select(ctx, cfg)

	var detector detect.Detector = detect.Whole()
	if cfg.Detector.URL != "" {
		detector = detect.NewClient(cfg.Detector.URL, 0.5)
	}

	cache := gallery.New(cfg.Data.CacheFile(), cfg.Data.FacesDir(), recognizer.Extractor(backend, detector))
	if err := cache.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading feature cache: %w", err)
	}

	scorer, err := similarity.NewScorer(similarity.Weights{
		Euclidean:   cfg.Face.WEuclidean,
		Cosine:      cfg.Face.WCosine,
		Correlation: cfg.Face.WCorrelation,
	})
	if err != nil {
		return nil, err
	}
	matcher, err := match.New(scorer, cfg.Face.Tolerance)
	if err != nil {
		return nil, err
	}

	ledger, err := attendance.NewLedger(
		attendance.Cutoff{Hour: cfg.Attendance.LateHour, Minute: cfg.Attendance.LateMinute},
		cfg.Attendance.AllowMultipleCheckin,
	)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("opening attendance database: %w", err)
	}

	rec := recognizer.New(cfg, backend, detector, cache, matcher, ledger, st)
	if err := rec.PrimeLedger(ctx, today()); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipeline{cfg: cfg, rec: rec, cache: cache, store: st}, nil
}

func (p *pipeline) Close() {
	if err := p.store.Close(); err != nil {
		fmt.Printf("Warning: closing database: %v\n", err)
	}
}
