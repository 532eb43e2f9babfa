package profiles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

type memProfileStorage struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
}

func newMemProfileStorage() *memProfileStorage {
	return &memProfileStorage{profiles: make(map[string]*models.Profile)}
}

func (m *memProfileStorage) StoreProfile(ctx context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.profiles[profile.ID] = &cp
	return nil
}

func (m *memProfileStorage) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, interfaces.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfileStorage) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memProfileStorage) SetActive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.profiles[id]
	if !ok {
		return interfaces.ErrProfileNotFound
	}
	for _, p := range m.profiles {
		p.IsActive = false
	}
	target.IsActive = true
	return nil
}

func (m *memProfileStorage) GetActive(ctx context.Context) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNoActiveProfile
}

func (m *memProfileStorage) DeleteProfile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return interfaces.ErrProfileNotFound
	}
	delete(m.profiles, id)
	return nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(newMemProfileStorage(), t.TempDir(), arbor.NewLogger())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestCreateRejectsDuplicateNames(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "personal"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Create(ctx, "Personal"); !errors.Is(err, interfaces.ErrDuplicateProfile) {
		t.Errorf("expected ErrDuplicateProfile for case-insensitive duplicate, got %v", err)
	}
	if _, err := svc.Create(ctx, ""); err == nil {
		t.Error("empty name must be rejected")
	}
}

func TestSingleActiveProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, "first")
	b, _ := svc.Create(ctx, "second")

	if _, err := svc.GetActive(ctx); !errors.Is(err, interfaces.ErrNoActiveProfile) {
		t.Errorf("expected ErrNoActiveProfile, got %v", err)
	}

	if err := svc.SetActive(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetActive(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	active, err := svc.GetActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != b.ID {
		t.Errorf("active = %s, want %s", active.ID, b.ID)
	}
}

func TestDeleteGuards(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, _ := svc.Create(ctx, "guarded")
	if err := svc.SetActive(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, p.ID); !errors.Is(err, interfaces.ErrProfileInUse) {
		t.Errorf("deleting the active profile must fail with ErrProfileInUse, got %v", err)
	}

	q, _ := svc.Create(ctx, "leased")
	svc.Lease(q.ID, "task_1")
	if err := svc.Delete(ctx, q.ID); !errors.Is(err, interfaces.ErrProfileInUse) {
		t.Errorf("deleting a leased profile must fail with ErrProfileInUse, got %v", err)
	}

	svc.Release(q.ID, "task_1")
	if err := svc.Delete(ctx, q.ID); err != nil {
		t.Errorf("delete after release should succeed, got %v", err)
	}
	if _, err := os.Stat(q.StateDir); !os.IsNotExist(err) {
		t.Error("state directory should be removed on delete")
	}
}

func TestImportCookies(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, _ := svc.Create(ctx, "cookies")

	if err := svc.ImportCookies(ctx, p.ID, []byte("{broken")); err == nil {
		t.Error("invalid JSON must be rejected")
	}
	if err := svc.ImportCookies(ctx, p.ID, []byte("[]")); err == nil {
		t.Error("empty jar must be rejected")
	}
	if err := svc.ImportCookies(ctx, p.ID, []byte(`[{"name":"","domain":"x"}]`)); err == nil {
		t.Error("cookie without a name must be rejected")
	}

	jar := `[{"name":"__Secure-1PSID","value":"v","domain":".google.com","path":"/"}]`
	if err := svc.ImportCookies(ctx, p.ID, []byte(jar)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(p.StateDir, CookieFileName))
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if string(data) != jar {
		t.Error("snapshot content mismatch")
	}
}
