package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileRepository implements Repository using file-based JSON storage.
type FileRepository struct {
	dataDir  string
	profiles map[uuid.UUID]*Profile
	mutex    sync.RWMutex
}

type profileData struct {
	Profiles []*Profile `json:"profiles"`
}

// NewFileRepository creates a new file-based profile repository.
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		dataDir:  dataDir,
		profiles: make(map[uuid.UUID]*Profile),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// Get retrieves a profile by user id.
func (r *FileRepository) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := *profile
	return &out, nil
}

// FindByUsername retrieves a profile by exact username.
func (r *FileRepository) FindByUsername(ctx context.Context, username string) (*Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, profile := range r.profiles {
		if profile.Username == username {
			out := *profile
			return &out, nil
		}
	}
	return nil, ErrProfileNotFound
}

// Upsert inserts or updates a profile, conflict-safe on id.
func (r *FileRepository) Upsert(ctx context.Context, params UpsertParams) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now().UTC()
	profile, ok := r.profiles[params.ID]
	if !ok {
		profile = &Profile{ID: params.ID, CreatedAt: now}
		r.profiles[params.ID] = profile
	}

	prev := *profile
	if params.Username != "" {
		profile.Username = params.Username
	}
	if params.DisplayName != "" {
		profile.DisplayName = params.DisplayName
	}
	if params.Intent != "" {
		profile.Intent = params.Intent
	}
	profile.UpdatedAt = now

	if err := r.save(); err != nil {
		if ok {
			*profile = prev
		} else {
			delete(r.profiles, params.ID)
		}
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// Delete removes a profile.
func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	profile, ok := r.profiles[id]
	if !ok {
		return ErrProfileNotFound
	}
	delete(r.profiles, id)

	if err := r.save(); err != nil {
		r.profiles[id] = profile
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// load reads profile data from file.
func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, "profiles.json")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var pd profileData
	if err := json.Unmarshal(data, &pd); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.profiles = make(map[uuid.UUID]*Profile)
	for _, profile := range pd.Profiles {
		r.profiles[profile.ID] = profile
	}

	return nil
}

// save writes profile data to file atomically.
func (r *FileRepository) save() error {
	list := make([]*Profile, 0, len(r.profiles))
	for _, profile := range r.profiles {
		list = append(list, profile)
	}

	jsonData, err := json.MarshalIndent(profileData{Profiles: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filepath.Join(r.dataDir, "profiles.json.tmp")
	if err := os.WriteFile(tempFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	finalFile := filepath.Join(r.dataDir, "profiles.json")
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
