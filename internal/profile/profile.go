// Package profile stores per-sender profile documents as JSON files.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrProfileNotFound is returned when a sender has no stored profile.
var ErrProfileNotFound = errors.New("profile not found")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Profile is one sender's stored document.
type Profile struct {
	SenderID  string         `json:"senderId"`
	Fields    map[string]any `json:"fields,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Store keeps one JSON file per sender under its data directory.
// Files are mode 0600 and the directory 0700; profiles can hold
// personal details.
type Store struct {
	dir string
}

// NewStore creates the data directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("profile directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SanitizeSenderID maps a raw sender id to a safe filename stem.
// Every character outside [A-Za-z0-9_-] becomes "-"; an id that
// sanitizes to nothing is rejected.
func SanitizeSenderID(senderID string) (string, error) {
	sanitized := unsafeChars.ReplaceAllString(senderID, "-")
	if strings.Trim(sanitized, "-") == "" {
		return "", fmt.Errorf("sender id %q sanitizes to empty", senderID)
	}
	return sanitized, nil
}

func (s *Store) path(senderID string) (string, error) {
	stem, err := SanitizeSenderID(senderID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, stem+".json"), nil
}

// Get loads a sender's profile.
func (s *Store) Get(senderID string) (*Profile, error) {
	path, err := s.path(senderID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// Put writes a sender's profile atomically: the document lands in a
// temp file first and is renamed into place.
func (s *Store) Put(senderID string, p *Profile) error {
	path, err := s.path(senderID)
	if err != nil {
		return err
	}
	p.SenderID = senderID
	p.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".profile-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}

// Delete removes a sender's profile. Deleting a missing profile fails
// with ErrProfileNotFound.
func (s *Store) Delete(senderID string) error {
	path, err := s.path(senderID)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return ErrProfileNotFound
	}
	return err
}

// List returns the sanitized ids of every stored profile, sorted by
// filename.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
