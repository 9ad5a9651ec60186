package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/jmylchreest/tvgrid/internal/models"
)

// mockSettingRepo is a map-backed SettingRepository.
type mockSettingRepo struct {
	mu       sync.Mutex
	settings map[string]string
	err      error
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{settings: make(map[string]string)}
}

func (m *mockSettingRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	value, ok := m.settings[key]
	if !ok {
		return nil, nil
	}
	return &models.Setting{Key: key, Value: value}, nil
}

func (m *mockSettingRepo) GetAll(ctx context.Context) ([]*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	keys := make([]string, 0, len(m.settings))
	for key := range m.settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*models.Setting, 0, len(keys))
	for _, key := range keys {
		out = append(out, &models.Setting{Key: key, Value: m.settings[key]})
	}
	return out, nil
}

func (m *mockSettingRepo) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.settings[key] = value
	return nil
}

func (m *mockSettingRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}

func (m *mockSettingRepo) EnsureDefaults(ctx context.Context, defaults map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range defaults {
		if _, ok := m.settings[key]; !ok {
			m.settings[key] = value
		}
	}
	return nil
}

func TestSettingsHandler_GetAll(t *testing.T) {
	ctx := context.Background()
	repo := newMockSettingRepo()
	handler := NewSettingsHandler(repo, discardLogger())

	t.Run("empty store reads as defaults", func(t *testing.T) {
		output, err := handler.GetAll(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Body.Settings["theme"] != "dark" {
			t.Errorf("expected default theme dark, got %q", output.Body.Settings["theme"])
		}
		if len(output.Body.Settings) != len(models.DefaultSettings()) {
			t.Errorf("expected %d defaults, got %d", len(models.DefaultSettings()), len(output.Body.Settings))
		}
	})

	t.Run("stored values overlay defaults", func(t *testing.T) {
		if err := repo.Set(ctx, "theme", "light"); err != nil {
			t.Fatal(err)
		}
		output, err := handler.GetAll(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Body.Settings["theme"] != "light" {
			t.Errorf("expected stored theme light, got %q", output.Body.Settings["theme"])
		}
		if output.Body.Settings["volume"] != models.DefaultSettings()["volume"] {
			t.Errorf("expected untouched keys to stay default")
		}
	})
}

func TestSettingsHandler_Get(t *testing.T) {
	ctx := context.Background()
	repo := newMockSettingRepo()
	handler := NewSettingsHandler(repo, discardLogger())

	t.Run("default for key never written", func(t *testing.T) {
		output, err := handler.Get(ctx, &GetSettingInput{Key: "volume"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !output.Body.Default {
			t.Error("expected default flag set")
		}
		if output.Body.Value != models.DefaultSettings()["volume"] {
			t.Errorf("unexpected value %q", output.Body.Value)
		}
	})

	t.Run("stored value clears the default flag", func(t *testing.T) {
		if err := repo.Set(ctx, "volume", "25"); err != nil {
			t.Fatal(err)
		}
		output, err := handler.Get(ctx, &GetSettingInput{Key: "volume"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Body.Default {
			t.Error("expected default flag clear")
		}
		if output.Body.Value != "25" {
			t.Errorf("expected 25, got %q", output.Body.Value)
		}
	})

	t.Run("404 for a key with no default", func(t *testing.T) {
		if _, err := handler.Get(ctx, &GetSettingInput{Key: "no_such_key"}); err == nil {
			t.Fatal("expected error for unknown key")
		}
	})

	t.Run("custom keys read back after a write", func(t *testing.T) {
		input := &SetSettingInput{Key: "client_window_size"}
		input.Body.Value = "1280x720"
		if _, err := handler.Set(ctx, input); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output, err := handler.Get(ctx, &GetSettingInput{Key: "client_window_size"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Body.Value != "1280x720" {
			t.Errorf("expected 1280x720, got %q", output.Body.Value)
		}
	})
}

func TestSettingsHandler_Update(t *testing.T) {
	ctx := context.Background()
	repo := newMockSettingRepo()
	handler := NewSettingsHandler(repo, discardLogger())

	t.Run("updates several keys at once", func(t *testing.T) {
		input := &UpdateSettingsInput{}
		input.Body.Settings = map[string]string{
			"theme":  "light",
			"volume": "55",
		}

		output, err := handler.Update(ctx, input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Body.Settings["theme"] != "light" || output.Body.Settings["volume"] != "55" {
			t.Errorf("unexpected merged settings: %+v", output.Body.Settings)
		}
	})

	t.Run("rejects an empty update", func(t *testing.T) {
		if _, err := handler.Update(ctx, &UpdateSettingsInput{}); err == nil {
			t.Fatal("expected error for empty update")
		}
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		repo.err = errors.New("disk full")
		defer func() { repo.err = nil }()

		input := &UpdateSettingsInput{}
		input.Body.Settings = map[string]string{"theme": "dark"}
		if _, err := handler.Update(ctx, input); err == nil {
			t.Fatal("expected error when the store fails")
		}
	})
}

func TestSettingsHandler_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newMockSettingRepo()
	handler := NewSettingsHandler(repo, discardLogger())

	if err := repo.Set(ctx, "theme", "light"); err != nil {
		t.Fatal(err)
	}

	if _, err := handler.Delete(ctx, &DeleteSettingInput{Key: "theme"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The key reads as its default again.
	output, err := handler.Get(ctx, &GetSettingInput{Key: "theme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !output.Body.Default || output.Body.Value != models.DefaultSettings()["theme"] {
		t.Errorf("expected default after reset, got %+v", output.Body)
	}

	// Resetting a key that was never written still succeeds.
	if _, err := handler.Delete(ctx, &DeleteSettingInput{Key: "never_written"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
