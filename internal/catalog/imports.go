package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

// CreateImportSource registers a logical manual-ingestion container and the
// virtual channel that represents it in the catalogue, one virtual channel
// per import source. Both rows are written under a single lock so
// an import source is never observed without its channel.
func (s *Store) CreateImportSource(name, kind string) (models.ImportSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return models.ImportSource{}, apperr.Validationf("import source name is required")
	}
	now := time.Now().UTC()
	channel := models.Channel{
		ID:           newID(),
		Title:        name,
		Enabled:      true,
		IsVirtual:    true,
		BackfillMode: models.BackfillAllHistory,
		DownloadMode: models.DownloadModeManual,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	src := models.ImportSource{ID: newID(), Name: name, Kind: kind, ChannelID: channel.ID, CreatedAt: now, UpdatedAt: now}
	s.data.Channels[channel.ID] = channel
	s.data.ImportSources[src.ID] = src
	if err := s.persist(); err != nil {
		delete(s.data.Channels, channel.ID)
		delete(s.data.ImportSources, src.ID)
		return models.ImportSource{}, err
	}
	return src, nil
}

// ImportSourceByChannel returns the import source whose virtual channel is
// channelID, used by the pipeline's adapter resolver to find the folders
// backing a virtual channel.
func (s *Store) ImportSourceByChannel(channelID string) (models.ImportSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.data.ImportSources {
		if src.ChannelID == channelID {
			return src, true
		}
	}
	return models.ImportSource{}, false
}

// ListImportSources returns every configured import source.
func (s *Store) ListImportSources() []models.ImportSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ImportSource, 0, len(s.data.ImportSources))
	for _, src := range s.data.ImportSources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddImportSourceFolder attaches a watched folder path to an import source.
func (s *Store) AddImportSourceFolder(folder models.ImportSourceFolder) (models.ImportSourceFolder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.ImportSources[folder.ImportSourceID]; !ok {
		return models.ImportSourceFolder{}, apperr.NotFoundf("import source %s not found", folder.ImportSourceID)
	}
	folder.ID = newID()
	folder.CreatedAt = time.Now().UTC()
	s.data.ImportSourceFolders[folder.ID] = folder
	if err := s.persist(); err != nil {
		delete(s.data.ImportSourceFolders, folder.ID)
		return models.ImportSourceFolder{}, err
	}
	return folder, nil
}

// ListImportSourceFolders returns every folder under an import source.
func (s *Store) ListImportSourceFolders(importSourceID string) []models.ImportSourceFolder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ImportSourceFolder, 0)
	for _, f := range s.data.ImportSourceFolders {
		if f.ImportSourceID == importSourceID {
			out = append(out, f)
		}
	}
	return out
}

// UpsertImportProfile creates or replaces a named detection profile.
func (s *Store) UpsertImportProfile(profile models.ImportProfile) (models.ImportProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if profile.ID == "" {
		profile.ID = newID()
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	s.data.ImportProfiles[profile.ID] = profile
	if err := s.persist(); err != nil {
		return models.ImportProfile{}, err
	}
	return profile, nil
}

// GetImportProfile returns the profile with the given ID.
func (s *Store) GetImportProfile(id string) (models.ImportProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.ImportProfiles[id]
	return p, ok
}

// ListImportProfiles returns every configured detection profile.
func (s *Store) ListImportProfiles() []models.ImportProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ImportProfile, 0, len(s.data.ImportProfiles))
	for _, p := range s.data.ImportProfiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpsertImportRecord inserts the record tracking one source path under a
// folder, unique by (folder, source_path); an existing record is returned
// unchanged.
func (s *Store) UpsertImportRecord(folderID, sourcePath string) (models.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.data.ImportRecords {
		if rec.FolderID == folderID && rec.SourcePath == sourcePath {
			return s.data.ImportRecords[id], nil
		}
	}
	now := time.Now().UTC()
	rec := models.ImportRecord{
		ID:         newID(),
		FolderID:   folderID,
		SourcePath: sourcePath,
		Outcome:    models.ImportOutcomePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.data.ImportRecords[rec.ID] = rec
	if err := s.persist(); err != nil {
		delete(s.data.ImportRecords, rec.ID)
		return models.ImportRecord{}, err
	}
	return rec, nil
}

// CompleteImportRecord records the outcome of processing an import record.
func (s *Store) CompleteImportRecord(id string, outcome models.ImportOutcome, designID *string, importErr string) (models.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.ImportRecords[id]
	if !ok {
		return models.ImportRecord{}, apperr.NotFoundf("import record %s not found", id)
	}
	rec.Outcome = outcome
	rec.DesignID = designID
	rec.Error = importErr
	rec.UpdatedAt = time.Now().UTC()
	s.data.ImportRecords[id] = rec
	if err := s.persist(); err != nil {
		return models.ImportRecord{}, err
	}
	return rec, nil
}

// ListImportRecords returns every record under a folder.
func (s *Store) ListImportRecords(folderID string) []models.ImportRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ImportRecord, 0)
	for _, rec := range s.data.ImportRecords {
		if rec.FolderID == folderID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out
}
