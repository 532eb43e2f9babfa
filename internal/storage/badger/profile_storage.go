package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

// ProfileStorage implements the ProfileStorage interface for Badger
type ProfileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProfileStorage creates a new ProfileStorage instance
func NewProfileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProfileStorage {
	return &ProfileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProfileStorage) StoreProfile(ctx context.Context, profile *models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile ID is required")
	}

	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	if err := s.db.Store().Upsert(profile.ID, profile); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

func (s *ProfileStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.Store().Get(id, &profile); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (s *ProfileStorage) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	var profiles []models.Profile
	if err := s.db.Store().Find(&profiles, nil); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	result := make([]*models.Profile, len(profiles))
	for i := range profiles {
		result[i] = &profiles[i]
	}
	return result, nil
}

// SetActive activates one profile and deactivates all others in a single
// write pass. The active pointer is single-writer state; callers serialize
// through the profiles service.
func (s *ProfileStorage) SetActive(ctx context.Context, id string) error {
	target, err := s.GetProfile(ctx, id)
	if err != nil {
		return err
	}

	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, p := range profiles {
		if p.IsActive && p.ID != id {
			p.IsActive = false
			p.UpdatedAt = now
			if err := s.db.Store().Upsert(p.ID, p); err != nil {
				return fmt.Errorf("failed to deactivate profile %s: %w", p.ID, err)
			}
		}
	}

	target.IsActive = true
	target.UpdatedAt = now
	if err := s.db.Store().Upsert(target.ID, target); err != nil {
		return fmt.Errorf("failed to activate profile %s: %w", id, err)
	}

	s.logger.Info().Str("profile_id", id).Str("name", target.Name).Msg("Active profile changed")
	return nil
}

func (s *ProfileStorage) GetActive(ctx context.Context) (*models.Profile, error) {
	var profiles []models.Profile
	if err := s.db.Store().Find(&profiles, badgerhold.Where("IsActive").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to find active profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, interfaces.ErrNoActiveProfile
	}
	return &profiles[0], nil
}

func (s *ProfileStorage) DeleteProfile(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Profile{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrProfileNotFound
		}
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
