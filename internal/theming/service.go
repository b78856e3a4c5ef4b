package theming

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/metrics"
	"github.com/xaenox/concern-cloud/internal/models"
)

// Service validates theming requests and runs them through a Themer.
type Service struct {
	themer  Themer
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewService(themer Themer, collector *metrics.Collector, logger *zap.Logger) *Service {
	return &Service{themer: themer, metrics: collector, logger: logger}
}

// Validate rejects input that must never reach the model.
func Validate(concerns []models.ThemedConcern) error {
	if len(concerns) == 0 {
		return apperr.Invalid("Valid concerns array is required")
	}
	seen := make(map[string]struct{}, len(concerns))
	for i, c := range concerns {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Text) == "" {
			return apperr.Invalid("concern %d must have an id and text", i)
		}
		if _, dup := seen[c.ID]; dup {
			return apperr.Invalid("concern id %s appears more than once", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Process groups concerns for a session.
func (s *Service) Process(ctx context.Context, concerns []models.ThemedConcern, sessionID string) (*models.ThemeSet, error) {
	if err := Validate(concerns); err != nil {
		s.observe(err, 0)
		return nil, err
	}

	s.logger.Info("Processing concerns",
		zap.String("session_id", sessionID),
		zap.Int("concerns", len(concerns)))

	set, err := s.themer.Theme(ctx, concerns, sessionID)
	if err != nil {
		s.observe(err, 0)
		return nil, err
	}

	if !InBand(len(concerns), len(set.Themes)) {
		lo, hi := TargetBand(len(concerns))
		s.logger.Warn("Theme count outside requested band",
			zap.String("session_id", sessionID),
			zap.Int("themes", len(set.Themes)),
			zap.Int("band_min", lo),
			zap.Int("band_max", hi))
	}

	s.observe(nil, len(set.Themes))
	s.logger.Info("Processed concerns",
		zap.String("session_id", sessionID),
		zap.Int("themes", len(set.Themes)))
	return set, nil
}

func (s *Service) observe(err error, themes int) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(string(apperr.KindOf(err)))
	}
	s.metrics.ObserveTheming(outcome, themes)
}
