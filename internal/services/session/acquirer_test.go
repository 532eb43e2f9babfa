package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/veoflow/veoflow/internal/models"
)

func TestLoadCookieJar(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is corrupt profile", func(t *testing.T) {
		_, err := loadCookieJar(filepath.Join(dir, "nope.json"))
		if !errors.Is(err, ErrProfileCorrupt) {
			t.Errorf("expected ErrProfileCorrupt, got %v", err)
		}
	})

	t.Run("invalid json is corrupt profile", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
			t.Fatal(err)
		}
		_, err := loadCookieJar(path)
		if !errors.Is(err, ErrProfileCorrupt) {
			t.Errorf("expected ErrProfileCorrupt, got %v", err)
		}
	})

	t.Run("valid jar loads", func(t *testing.T) {
		path := filepath.Join(dir, "good.json")
		jar := `[{"name":"__Secure-1PSID","value":"abc","domain":".google.com","path":"/","secure":true}]`
		if err := os.WriteFile(path, []byte(jar), 0600); err != nil {
			t.Fatal(err)
		}
		cookies, err := loadCookieJar(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cookies) != 1 || cookies[0].Name != "__Secure-1PSID" {
			t.Errorf("unexpected cookies: %+v", cookies)
		}
	})
}

func TestCountAuthCookies(t *testing.T) {
	tests := []struct {
		name    string
		cookies []models.Cookie
		want    int
	}{
		{
			name:    "empty jar",
			cookies: nil,
			want:    0,
		},
		{
			name: "tracking cookies do not count",
			cookies: []models.Cookie{
				{Name: "NID"},
				{Name: "_ga"},
				{Name: "CONSENT"},
			},
			want: 0,
		},
		{
			name: "session id cookies count",
			cookies: []models.Cookie{
				{Name: "__Secure-1PSID"},
				{Name: "__Secure-3PSID"},
				{Name: "SIDCC"},
			},
			want: 3,
		},
		{
			name: "case insensitive match",
			cookies: []models.Cookie{
				{Name: "SESSION_TOKEN"},
				{Name: "OAuth_State"},
			},
			want: 2,
		},
		{
			name: "mixed jar counts only auth",
			cookies: []models.Cookie{
				{Name: "_ga"},
				{Name: "auth_token"},
				{Name: "prefs"},
				{Name: "login_hint"},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countAuthCookies(tt.cookies); got != tt.want {
				t.Errorf("countAuthCookies() = %d, want %d", got, tt.want)
			}
		})
	}
}
