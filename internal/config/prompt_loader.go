package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LoadedPrompts holds prompt template content loaded from files. Access goes
// through the package-level accessors so the fsnotify watcher can swap
// content without racing readers.
type LoadedPrompts struct {
	EnrichJob     string
	ResumeProfile string
	SkillGap      string
}

var (
	loadedPromptsMu sync.RWMutex
	loadedPrompts   LoadedPrompts
)

// GetLoadedPrompts returns a copy of the currently loaded prompt overrides.
func GetLoadedPrompts() LoadedPrompts {
	loadedPromptsMu.RLock()
	defer loadedPromptsMu.RUnlock()
	return loadedPrompts
}

func setLoadedPrompt(target *string, content string) {
	loadedPromptsMu.Lock()
	defer loadedPromptsMu.Unlock()
	*target = content
}

// loadPromptsFromFiles loads prompt overrides from external files if paths
// are specified in the configuration.
func (c *Config) loadPromptsFromFiles() error {
	prompts := &c.AI.CustomPrompts

	if prompts.EnrichJobFile != "" {
		content, err := loadPromptFile(prompts.EnrichJobFile)
		if err != nil {
			return err
		}
		setLoadedPrompt(&loadedPrompts.EnrichJob, content)
	}

	if prompts.ResumeProfileFile != "" {
		content, err := loadPromptFile(prompts.ResumeProfileFile)
		if err != nil {
			return err
		}
		setLoadedPrompt(&loadedPrompts.ResumeProfile, content)
	}

	if prompts.SkillGapFile != "" {
		content, err := loadPromptFile(prompts.SkillGapFile)
		if err != nil {
			return err
		}
		setLoadedPrompt(&loadedPrompts.SkillGap, content)
	}

	return nil
}

// loadPromptFile reads and validates a single prompt template file.
func loadPromptFile(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", fmt.Errorf("prompt file %s: %w", cleanPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("prompt file %s is a directory", cleanPath)
	}
	// A template over ~64KB is almost certainly the wrong file
	if info.Size() > 64*1024 {
		return "", fmt.Errorf("prompt file %s too large (%d bytes)", cleanPath, info.Size())
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", cleanPath, err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("prompt file %s is empty", cleanPath)
	}

	return content, nil
}

// ResolvePrompt selects the correct prompt string based on priority:
// 1. content loaded from a file, 2. inline config value, 3. built-in default.
func ResolvePrompt(loadedFromFile, fromConfig, fromDefault string) string {
	if loadedFromFile != "" {
		return loadedFromFile
	}
	if fromConfig != "" {
		return fromConfig
	}
	return fromDefault
}

// promptFilePaths returns the configured prompt override files, for watching.
func (c *Config) promptFilePaths() []string {
	var paths []string
	for _, p := range []string{
		c.AI.CustomPrompts.EnrichJobFile,
		c.AI.CustomPrompts.ResumeProfileFile,
		c.AI.CustomPrompts.SkillGapFile,
	} {
		if p != "" {
			paths = append(paths, filepath.Clean(p))
		}
	}
	return paths
}
