// Package store persists promptbench state as JSON files under a data
// directory, mirroring the browser-storage layout the workbench replaces:
// one prompts file per user holding full aggregates, one settings file
// with provider credentials, and a pointer file naming the active user.
//
// Writes replace whole files via temp-file + rename, so a crashed write
// never leaves a truncated aggregate on disk. Concurrent writers follow a
// last-writer-wins policy, a known limitation, documented rather than
// guarded.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/timvw/promptbench/internal/model"
)

// DefaultUser is used when no current-user pointer has been written.
const DefaultUser = "default"

// Store reads and writes the on-disk state.
type Store struct {
	dir string
}

// Open ensures the data directory exists and returns a store over it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory path.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) promptsPath(userID string) string {
	return filepath.Join(s.dir, "prompts_"+userID+".json")
}

// LoadPrompts returns all prompt aggregates for a user. A missing file is
// an empty collection, not an error. Timestamps round-trip as RFC 3339
// text and come back as time.Time values.
func (s *Store) LoadPrompts(userID string) ([]model.Prompt, error) {
	data, err := os.ReadFile(s.promptsPath(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompts for %s: %w", userID, err)
	}
	var prompts []model.Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("parse prompts for %s: %w", userID, err)
	}
	return prompts, nil
}

// SavePrompts replaces the user's entire prompts collection.
func (s *Store) SavePrompts(userID string, prompts []model.Prompt) error {
	if prompts == nil {
		prompts = []model.Prompt{}
	}
	data, err := json.MarshalIndent(prompts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prompts for %s: %w", userID, err)
	}
	return s.writeFile(s.promptsPath(userID), data)
}

// UpsertPrompt replaces the aggregate with a matching id, or appends it
// when new, and persists the whole collection.
func (s *Store) UpsertPrompt(userID string, p model.Prompt) error {
	prompts, err := s.LoadPrompts(userID)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range prompts {
		if existing.ID == p.ID {
			prompts[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		prompts = append(prompts, p)
	}
	return s.SavePrompts(userID, prompts)
}

// DeletePrompt removes the aggregate with the given name, destroying its
// versions, datasets, and experiments with it.
func (s *Store) DeletePrompt(userID, name string) error {
	prompts, err := s.LoadPrompts(userID)
	if err != nil {
		return err
	}
	kept := prompts[:0]
	for _, p := range prompts {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	return s.SavePrompts(userID, kept)
}

// FindPrompt returns the prompt whose id or name matches key.
func (s *Store) FindPrompt(userID, key string) (model.Prompt, error) {
	prompts, err := s.LoadPrompts(userID)
	if err != nil {
		return model.Prompt{}, err
	}
	for _, p := range prompts {
		if p.ID == key || p.Name == key {
			return p, nil
		}
	}
	return model.Prompt{}, fmt.Errorf("prompt %q not found", key)
}

// Settings returns the provider→credential map. Missing file is an empty map.
func (s *Store) Settings() (map[string]string, error) {
	path := filepath.Join(s.dir, "settings.json")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	settings := map[string]string{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return settings, nil
}

// SaveSettings replaces the provider→credential map.
func (s *Store) SaveSettings(settings map[string]string) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.writeFile(filepath.Join(s.dir, "settings.json"), data)
}

// APIKey reads the stored credential for a provider. It re-reads the
// settings file on every call so a credential change during a long
// experiment run takes effect on the next LLM call.
func (s *Store) APIKey(provider string) (string, bool) {
	settings, err := s.Settings()
	if err != nil {
		return "", false
	}
	key, ok := settings[provider]
	return key, ok && key != ""
}

// CurrentUser returns the active user id, or DefaultUser when none is set.
func (s *Store) CurrentUser() string {
	data, err := os.ReadFile(filepath.Join(s.dir, "current_user"))
	if err != nil || len(data) == 0 {
		return DefaultUser
	}
	return string(data)
}

// SetCurrentUser records the active user id.
func (s *Store) SetCurrentUser(userID string) error {
	return s.writeFile(filepath.Join(s.dir, "current_user"), []byte(userID))
}

// writeFile writes data atomically: temp file in the same directory, then
// rename over the target.
func (s *Store) writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
