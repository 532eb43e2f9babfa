package flow

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/models"
)

// fakeBrowser scripts the page surface EnsureEditor drives: navigation,
// reloads, and JS evaluation keyed on stable script fragments. Clicks on
// navigation affordances are recorded in call order.
type fakeBrowser struct {
	calls   []string
	views   []string // DetectView results, last value repeats
	viewIdx int
}

func (b *fakeBrowser) navigate(ctx context.Context, url string) error {
	b.calls = append(b.calls, "navigate")
	return nil
}

func (b *fakeBrowser) reload(ctx context.Context) error {
	b.calls = append(b.calls, "reload")
	return nil
}

func (b *fakeBrowser) eval(ctx context.Context, script string, res interface{}) error {
	switch {
	case strings.Contains(script, "readyState"):
		*res.(*bool) = true
	case strings.Contains(script, "location.href"):
		*res.(*string) = "https://labs.google/fx/tools/flow/"
	case strings.Contains(script, "const editor = count("):
		view := "unknown"
		if len(b.views) > 0 {
			idx := b.viewIdx
			if idx >= len(b.views) {
				idx = len(b.views) - 1
			}
			view = b.views[idx]
		}
		b.viewIdx++
		*res.(*string) = view
	case strings.Contains(script, "[data-home]"):
		b.calls = append(b.calls, "return-to-gallery")
		*res.(*bool) = true
	case strings.Contains(script, "[data-new-project]"):
		b.calls = append(b.calls, "create-project")
		*res.(*bool) = true
	case strings.Contains(script, "[data-gallery]"):
		b.calls = append(b.calls, "open-existing")
		*res.(*bool) = true
	case strings.Contains(script, "dismissed"):
		*res.(*int) = 0
	case strings.Contains(script, "parts.push"):
		*res.(*string) = ""
	case strings.Contains(script, "tín dụng"):
		*res.(*bool) = false
	}
	return nil
}

func (b *fakeBrowser) callIndex(name string) int {
	for i, c := range b.calls {
		if c == name {
			return i
		}
	}
	return -1
}

func newScriptedNavigator(b *fakeBrowser) *Navigator {
	cfg := common.NewDefaultConfig().Flow
	cfg.Selectors.EditorIndicator = "[data-editor]"
	cfg.Selectors.GalleryIndicator = "[data-gallery]"
	cfg.Selectors.HomeAffordance = "[data-home]"
	cfg.Selectors.NewProjectButton = "[data-new-project]"
	return &Navigator{
		cfg:      cfg,
		headless: true,
		logger:   arbor.NewLogger(),
		eval:     b.eval,
		navigate: b.navigate,
		reload:   b.reload,
	}
}

func TestEnsureEditorForceNewGoesThroughGallery(t *testing.T) {
	b := &fakeBrowser{views: []string{"editor", "editor"}}
	n := newScriptedNavigator(b)

	view, err := n.EnsureEditor(context.Background(), context.Background(), true)
	if err != nil {
		t.Fatalf("EnsureEditor() error = %v", err)
	}
	if view != models.ViewEditor {
		t.Fatalf("EnsureEditor() view = %s, want editor", view)
	}

	gallery := b.callIndex("return-to-gallery")
	create := b.callIndex("create-project")
	if gallery == -1 {
		t.Fatal("forceNew in an open editor must navigate back to the gallery, not reuse the editor")
	}
	if create == -1 {
		t.Fatal("forceNew must create a new project")
	}
	if gallery > create {
		t.Errorf("gallery return (call %d) must precede project creation (call %d)", gallery, create)
	}
	if b.callIndex("open-existing") != -1 {
		t.Error("forceNew must never open an existing project")
	}
}

func TestEnsureEditorKeepsEditorWithoutForceNew(t *testing.T) {
	b := &fakeBrowser{views: []string{"editor"}}
	n := newScriptedNavigator(b)

	view, err := n.EnsureEditor(context.Background(), context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureEditor() error = %v", err)
	}
	if view != models.ViewEditor {
		t.Fatalf("EnsureEditor() view = %s, want editor", view)
	}
	for _, name := range []string{"return-to-gallery", "create-project", "open-existing"} {
		if b.callIndex(name) != -1 {
			t.Errorf("unexpected %s call when already in the editor without forceNew", name)
		}
	}
}

func TestEnsureEditorForceNewFromGallery(t *testing.T) {
	b := &fakeBrowser{views: []string{"gallery", "editor"}}
	n := newScriptedNavigator(b)

	view, err := n.EnsureEditor(context.Background(), context.Background(), true)
	if err != nil {
		t.Fatalf("EnsureEditor() error = %v", err)
	}
	if view != models.ViewEditor {
		t.Fatalf("EnsureEditor() view = %s, want editor", view)
	}
	if b.callIndex("create-project") == -1 {
		t.Error("forceNew from the gallery must create a new project")
	}
	if b.callIndex("return-to-gallery") != -1 {
		t.Error("no gallery return expected when already in the gallery")
	}
}

func TestIsLoginURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://labs.google/fx/tools/flow/", false},
		{"https://labs.google/fx/tools/flow/project/abc123", false},
		{"https://accounts.google.com/v3/signin/identifier?continue=...", true},
		{"https://accounts.google.com/ServiceLogin?hl=en", true},
		{"https://example.com/login?next=/flow", true},
		{"https://labs.google/signin", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := isLoginURL(tt.url); got != tt.want {
				t.Errorf("isLoginURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestSplitChain(t *testing.T) {
	tests := []struct {
		name  string
		chain string
		want  []string
	}{
		{
			name:  "plain chain",
			chain: "textarea,[contenteditable='true']",
			want:  []string{"textarea", "[contenteditable='true']"},
		},
		{
			name:  "whitespace and empties trimmed",
			chain: " video , , a[download] ",
			want:  []string{"video", "a[download]"},
		},
		{
			name:  "empty chain",
			chain: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitChain(tt.chain); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitChain(%q) = %v, want %v", tt.chain, got, tt.want)
			}
		})
	}
}

func TestMatchAccountPopup(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMsg string
		wantHit bool
	}{
		{
			name:    "quota popup matches",
			text:    "Quota exceeded for this account.\nTry again tomorrow.",
			wantMsg: "Quota exceeded for this account. Try again tomorrow.",
			wantHit: true,
		},
		{
			name:    "localized account error matches",
			text:    "Rất tiếc, đã xảy ra lỗi. Vui lòng thử lại.",
			wantMsg: "Rất tiếc, đã xảy ra lỗi. Vui lòng thử lại.",
			wantHit: true,
		},
		{
			name:    "short text never matches",
			text:    "error",
			wantHit: false,
		},
		{
			name:    "informational dialog passes",
			text:    "Your project has been saved to the gallery",
			wantHit: false,
		},
		{
			name:    "empty page",
			text:    "",
			wantHit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, hit := matchAccountPopup(tt.text, 10)
			if hit != tt.wantHit {
				t.Fatalf("matchAccountPopup(%q) hit = %v, want %v", tt.text, hit, tt.wantHit)
			}
			if msg != tt.wantMsg {
				t.Errorf("matchAccountPopup(%q) msg = %q, want %q", tt.text, msg, tt.wantMsg)
			}
		})
	}
}

func TestJSSelectorArray(t *testing.T) {
	got := jsSelectorArray("textarea,[contenteditable='true']")
	want := `['textarea','[contenteditable=\'true\']']`
	if got != want {
		t.Errorf("jsSelectorArray() = %s, want %s", got, want)
	}
}
