package kv

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/musicflow/musicflow/internal/domain"
	"github.com/musicflow/musicflow/internal/ports"
)

// Settings keys in the settings partition.
const (
	keyTheme   = "theme"
	keyVolume  = "volume"
	keyQuality = "quality"
)

// SettingsRepository implements ports.SettingsRepository.
// Each setting is a separate scalar record holding its JSON value.
type SettingsRepository struct {
	store ports.Store
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(store ports.Store) *SettingsRepository {
	return &SettingsRepository{store: store}
}

// SaveVolume persists the volume level.
func (r *SettingsRepository) SaveVolume(ctx context.Context, volume float64) error {
	return r.put(ctx, keyVolume, volume)
}

// LoadVolume retrieves the saved volume level.
func (r *SettingsRepository) LoadVolume(ctx context.Context) (float64, bool, error) {
	rec, ok, err := r.store.Get(ctx, ports.PartitionSettings, keyVolume)
	if err != nil || !ok {
		return 0, false, err
	}
	var volume float64
	if err := json.Unmarshal(rec.Value, &volume); err != nil {
		return 0, false, errors.Wrap(err, "failed to unmarshal volume")
	}
	return volume, true, nil
}

// SaveTheme persists the theme preference.
func (r *SettingsRepository) SaveTheme(ctx context.Context, theme domain.Theme) error {
	return r.put(ctx, keyTheme, theme)
}

// SaveQuality persists the audio quality preference.
func (r *SettingsRepository) SaveQuality(ctx context.Context, quality domain.AudioQuality) error {
	return r.put(ctx, keyQuality, quality)
}

// LoadSettings assembles the settings from stored keys over the defaults.
// Returns nil when no key is stored.
func (r *SettingsRepository) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	records, err := r.store.GetAll(ctx, ports.PartitionSettings)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	settings := domain.DefaultSettings()
	for _, rec := range records {
		var target any
		switch rec.Key {
		case keyTheme:
			target = &settings.Theme
		case keyVolume:
			target = &settings.Volume
		case keyQuality:
			target = &settings.Quality
		default:
			continue
		}
		if err := json.Unmarshal(rec.Value, target); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal setting %s", rec.Key)
		}
	}
	return &settings, nil
}

func (r *SettingsRepository) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal setting %s", key)
	}
	return r.store.Put(ctx, ports.PartitionSettings, ports.Record{Key: key, Value: data})
}

// Verify that SettingsRepository implements the SettingsRepository interface
var _ ports.SettingsRepository = (*SettingsRepository)(nil)
