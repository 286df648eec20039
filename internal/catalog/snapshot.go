package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// newID mints a new primary key.
func newID() string {
	return uuid.New().String()
}

// load reads the snapshot file at s.filePath into s.data, leaving an empty
// dataset untouched if the file does not yet exist.
func (s *Store) load() error {
	if s.filePath == "" {
		return nil
	}
	file, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open catalog snapshot %s: %w", s.filePath, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var loaded dataset
	if err := decoder.Decode(&loaded); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode catalog snapshot %s: %w", s.filePath, err)
	}
	s.data = loaded
	ensureInitialized(&s.data)
	return nil
}

// Load opens the Store's snapshot file and hydrates its dataset; a missing
// file leaves the dataset empty and is not created until the first write.
// Call once during startup before serving traffic.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func ensureInitialized(d *dataset) {
	empty := newDataset()
	if d.Channels == nil {
		d.Channels = empty.Channels
	}
	if d.DiscoveredChannels == nil {
		d.DiscoveredChannels = empty.DiscoveredChannels
	}
	if d.Messages == nil {
		d.Messages = empty.Messages
	}
	if d.Attachments == nil {
		d.Attachments = empty.Attachments
	}
	if d.Designs == nil {
		d.Designs = empty.Designs
	}
	if d.DesignSources == nil {
		d.DesignSources = empty.DesignSources
	}
	if d.DesignFiles == nil {
		d.DesignFiles = empty.DesignFiles
	}
	if d.Tags == nil {
		d.Tags = empty.Tags
	}
	if d.DesignTags == nil {
		d.DesignTags = empty.DesignTags
	}
	if d.FamilyTags == nil {
		d.FamilyTags = empty.FamilyTags
	}
	if d.ImportSources == nil {
		d.ImportSources = empty.ImportSources
	}
	if d.ImportSourceFolders == nil {
		d.ImportSourceFolders = empty.ImportSourceFolders
	}
	if d.ImportProfiles == nil {
		d.ImportProfiles = empty.ImportProfiles
	}
	if d.ImportRecords == nil {
		d.ImportRecords = empty.ImportRecords
	}
	if d.DuplicateCandidates == nil {
		d.DuplicateCandidates = empty.DuplicateCandidates
	}
	if d.Families == nil {
		d.Families = empty.Families
	}
	if d.PreviewAssets == nil {
		d.PreviewAssets = empty.PreviewAssets
	}
	if d.ExternalMetadataLinks == nil {
		d.ExternalMetadataLinks = empty.ExternalMetadataLinks
	}
	if d.Settings == nil {
		d.Settings = empty.Settings
	}
}

// persist writes the current dataset to disk atomically (write to a temp
// file, then rename), or delegates to persistOverride when set by tests.
func (s *Store) persist() error {
	if s.persistOverride != nil {
		return s.persistOverride(s.data)
	}
	if s.filePath == "" {
		return nil
	}
	tmp := s.filePath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create catalog snapshot temp file: %w", err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close catalog snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace catalog snapshot %s: %w", s.filePath, err)
	}
	return nil
}
