package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

// CookieFileName is the auth-state snapshot inside a profile's state dir
const CookieFileName = "cookies.json"

// Service manages authenticated browser profiles: metadata in storage, the
// cookie snapshot on disk, the single active-profile pointer, and leases
// held by running sessions.
type Service struct {
	storage     interfaces.ProfileStorage
	profilesDir string
	logger      arbor.ILogger

	mu     sync.Mutex
	leases map[string]map[string]struct{} // profile id -> set of task ids
}

// NewService creates a profile service rooted at profilesDir
func NewService(storage interfaces.ProfileStorage, profilesDir string, logger arbor.ILogger) (*Service, error) {
	if err := os.MkdirAll(profilesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profiles directory: %w", err)
	}
	return &Service{
		storage:     storage,
		profilesDir: profilesDir,
		logger:      logger,
		leases:      make(map[string]map[string]struct{}),
	}, nil
}

// Create creates a new named profile with an empty state directory
func (s *Service) Create(ctx context.Context, name string) (*models.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile name is required")
	}

	existing, err := s.storage.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if strings.EqualFold(p.Name, name) {
			return nil, interfaces.ErrDuplicateProfile
		}
	}

	id := common.NewProfileID()
	stateDir := filepath.Join(s.profilesDir, id)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile state directory: %w", err)
	}

	profile := &models.Profile{
		ID:       id,
		Name:     name,
		StateDir: stateDir,
		IsActive: false,
	}
	if err := s.storage.StoreProfile(ctx, profile); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("profile_id", id).
		Str("name", name).
		Str("state_dir", stateDir).
		Msg("Profile created")
	return profile, nil
}

// List returns all profiles
func (s *Service) List(ctx context.Context) ([]*models.Profile, error) {
	return s.storage.ListProfiles(ctx)
}

// Get returns a profile by id
func (s *Service) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.storage.GetProfile(ctx, id)
}

// SetActive makes the given profile the single active one
func (s *Service) SetActive(ctx context.Context, id string) error {
	return s.storage.SetActive(ctx, id)
}

// GetActive returns the active profile, or ErrNoActiveProfile
func (s *Service) GetActive(ctx context.Context) (*models.Profile, error) {
	return s.storage.GetActive(ctx)
}

// Delete removes a profile and its state directory. Fails with
// ErrProfileInUse when the profile is active or leased by a running session.
func (s *Service) Delete(ctx context.Context, id string) error {
	profile, err := s.storage.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	if profile.IsActive {
		return fmt.Errorf("cannot delete active profile %s: %w", id, interfaces.ErrProfileInUse)
	}

	s.mu.Lock()
	leased := len(s.leases[id]) > 0
	s.mu.Unlock()
	if leased {
		return fmt.Errorf("cannot delete profile %s held by a running session: %w", id, interfaces.ErrProfileInUse)
	}

	if err := s.storage.DeleteProfile(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(profile.StateDir); err != nil {
		s.logger.Warn().Err(err).Str("state_dir", profile.StateDir).Msg("Failed to remove profile state directory")
	}

	s.logger.Info().Str("profile_id", id).Str("name", profile.Name).Msg("Profile deleted")
	return nil
}

// ImportCookies validates and writes an exported cookie jar into the
// profile's state directory, replacing any previous snapshot.
func (s *Service) ImportCookies(ctx context.Context, id string, jar []byte) error {
	profile, err := s.storage.GetProfile(ctx, id)
	if err != nil {
		return err
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(jar, &cookies); err != nil {
		return fmt.Errorf("cookie jar is not valid JSON: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("cookie jar is empty")
	}
	for i, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			return fmt.Errorf("cookie %d is missing name or domain", i)
		}
	}

	path := filepath.Join(profile.StateDir, CookieFileName)
	if err := os.WriteFile(path, jar, 0600); err != nil {
		return fmt.Errorf("failed to write cookie snapshot: %w", err)
	}

	if err := s.storage.StoreProfile(ctx, profile); err != nil {
		return err
	}

	s.logger.Info().
		Str("profile_id", id).
		Int("cookies", len(cookies)).
		Msg("Cookie snapshot imported")
	return nil
}

// Lease marks a profile as held by a running session. The snapshot handed
// to the task is immutable; the lease only blocks deletion.
func (s *Service) Lease(profileID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[profileID] == nil {
		s.leases[profileID] = make(map[string]struct{})
	}
	s.leases[profileID][taskID] = struct{}{}
}

// Release drops a session's lease on a profile
func (s *Service) Release(profileID, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tasks, ok := s.leases[profileID]; ok {
		delete(tasks, taskID)
		if len(tasks) == 0 {
			delete(s.leases, profileID)
		}
	}
}
