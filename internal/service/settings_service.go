package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// SettingsService reads and writes the scalar settings. Volume is owned by
// the player service; this service exposes it read-only.
type SettingsService struct {
	// Dependencies (injected)
	logger     zerolog.Logger
	repository ports.SettingsRepository
	bus        ports.EventBus

	validate *validator.Validate
}

// NewSettingsService creates a new settings service.
func NewSettingsService(logger zerolog.Logger, repository ports.SettingsRepository, bus ports.EventBus) *SettingsService {
	logger.Debug().Msg("settings service initialized")
	return &SettingsService{
		logger:     logger,
		repository: repository,
		bus:        bus,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Get returns the stored settings, or the defaults when nothing is stored.
func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repository.LoadSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if settings == nil {
		return domain.DefaultSettings(), nil
	}
	return *settings, nil
}

// SetTheme validates and saves the theme.
func (s *SettingsService) SetTheme(ctx context.Context, theme domain.Theme) error {
	if err := s.validate.Struct(theme); err != nil {
		return s.validationError("theme", theme, err)
	}
	if err := s.repository.SaveTheme(ctx, theme); err != nil {
		s.logger.Error().Err(err).Msg("failed to save theme")
		return err
	}
	s.logger.Info().Str("mode", string(theme.Mode)).Str("accent", theme.AccentColor).Msg("theme saved")
	s.publish(ctx)
	return nil
}

// SetQuality validates and saves the audio quality preference.
func (s *SettingsService) SetQuality(ctx context.Context, quality domain.AudioQuality) error {
	if err := s.validate.Var(string(quality), "oneof=low medium high"); err != nil {
		return s.validationError("quality", quality, err)
	}
	if err := s.repository.SaveQuality(ctx, quality); err != nil {
		s.logger.Error().Err(err).Msg("failed to save quality")
		return err
	}
	s.logger.Info().Str("quality", string(quality)).Msg("quality saved")
	s.publish(ctx)
	return nil
}

func (s *SettingsService) publish(ctx context.Context) {
	settings, err := s.Get(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to reload settings after save")
		return
	}
	s.bus.Publish(domain.NewSettingsChangedEvent(settings))
}

func (s *SettingsService) validationError(field string, value any, err error) error {
	msg := "invalid value"
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		msg = "failed " + fe.Tag() + " check"
		if fe.Field() != "" {
			msg = fe.Field() + " " + msg
		}
	}
	return domain.NewValidationError(field, value, msg, err)
}
