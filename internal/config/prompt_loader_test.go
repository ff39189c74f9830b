package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePrompt(t *testing.T) {
	tests := []struct {
		name       string
		fromFile   string
		fromConfig string
		fromDefault string
		want       string
	}{
		{"file wins", "file content", "config content", "default content", "file content"},
		{"config wins when no file", "", "config content", "default content", "config content"},
		{"default when nothing else", "", "", "default content", "default content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePrompt(tt.fromFile, tt.fromConfig, tt.fromDefault)
			if got != tt.want {
				t.Errorf("ResolvePrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadPromptFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "enrich.txt")
		if err := os.WriteFile(path, []byte("  Analyze this job: %s  \n"), 0o600); err != nil {
			t.Fatal(err)
		}

		content, err := loadPromptFile(path)
		if err != nil {
			t.Fatalf("loadPromptFile() error: %v", err)
		}
		if content != "Analyze this job: %s" {
			t.Errorf("content not trimmed: %q", content)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadPromptFile(filepath.Join(dir, "nope.txt")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := loadPromptFile(path); err == nil {
			t.Error("expected error for empty file")
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := loadPromptFile(dir); err == nil {
			t.Error("expected error for directory")
		}
	})
}

func TestLoadPromptsFromFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.txt")
	if err := os.WriteFile(path, []byte("Extract a profile from: %s"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	cfg.AI.CustomPrompts.ResumeProfileFile = path

	if err := cfg.loadPromptsFromFiles(); err != nil {
		t.Fatalf("loadPromptsFromFiles() error: %v", err)
	}

	loaded := GetLoadedPrompts()
	if loaded.ResumeProfile != "Extract a profile from: %s" {
		t.Errorf("loaded profile prompt = %q", loaded.ResumeProfile)
	}
}
