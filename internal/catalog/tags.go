package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

// EnsureTag returns the Tag for name, creating it if it doesn't exist.
// Names are normalised to lowercase so "Dragon" and "dragon" collapse.
func (s *Store) EnsureTag(name, category string) (models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return models.Tag{}, apperr.Validationf("tag name is required")
	}
	for _, t := range s.data.Tags {
		if t.Name == normalized {
			return t, nil
		}
	}
	tag := models.Tag{ID: newID(), Name: normalized, Category: category}
	s.data.Tags[tag.ID] = tag
	if err := s.persist(); err != nil {
		delete(s.data.Tags, tag.ID)
		return models.Tag{}, err
	}
	return tag, nil
}

// TagDesign attaches a tag to a design, ignoring the call if the pair
// already exists.
func (s *Store) TagDesign(designID, tagID string, source models.TagSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dt := range s.data.DesignTags[designID] {
		if dt.TagID == tagID {
			return nil
		}
	}
	s.data.DesignTags[designID] = append(s.data.DesignTags[designID], models.DesignTag{
		DesignID: designID,
		TagID:    tagID,
		Source:   source,
	})
	return s.persist()
}

// UntagDesign removes a tag from a design.
func (s *Store) UntagDesign(designID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.data.DesignTags[designID]
	for i, dt := range tags {
		if dt.TagID == tagID {
			s.data.DesignTags[designID] = append(tags[:i], tags[i+1:]...)
			return s.persist()
		}
	}
	return nil
}

// ListDesignTags returns every tag attached to a design alongside its
// attachment source.
func (s *Store) ListDesignTags(designID string) []models.DesignTag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DesignTag, len(s.data.DesignTags[designID]))
	copy(out, s.data.DesignTags[designID])
	return out
}

// TagFamily attaches a tag to a family, ignoring the call if the pair
// already exists.
func (s *Store) TagFamily(familyID, tagID string, source models.TagSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ft := range s.data.FamilyTags[familyID] {
		if ft.TagID == tagID {
			return nil
		}
	}
	s.data.FamilyTags[familyID] = append(s.data.FamilyTags[familyID], models.FamilyTag{
		FamilyID: familyID,
		TagID:    tagID,
		Source:   source,
	})
	return s.persist()
}

// UntagFamily removes a tag from a family, used to replace a family's
// AI-sourced tags after re-aggregation.
func (s *Store) UntagFamily(familyID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.data.FamilyTags[familyID]
	for i, ft := range tags {
		if ft.TagID == tagID {
			s.data.FamilyTags[familyID] = append(tags[:i], tags[i+1:]...)
			return s.persist()
		}
	}
	return nil
}

// ListFamilyTags returns every tag attached to a family.
func (s *Store) ListFamilyTags(familyID string) []models.FamilyTag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FamilyTag, len(s.data.FamilyTags[familyID]))
	copy(out, s.data.FamilyTags[familyID])
	return out
}

// FindTagByName looks up a tag by its normalised name.
func (s *Store) FindTagByName(name string) (models.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, t := range s.data.Tags {
		if t.Name == normalized {
			return t, true
		}
	}
	return models.Tag{}, false
}

// ListTags returns every known tag sorted by name.
func (s *Store) ListTags() []models.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Tag, 0, len(s.data.Tags))
	for _, t := range s.data.Tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetSetting stores a JSON-encoded setting value.
func (s *Store) SetSetting(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Settings[key] = models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.persist()
}

// GetSetting returns the setting for key.
func (s *Store) GetSetting(key string) (models.Setting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data.Settings[key]
	return v, ok
}

// ListSettings returns every stored setting.
func (s *Store) ListSettings() []models.Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Setting, 0, len(s.data.Settings))
	for _, v := range s.data.Settings {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DeleteSetting removes a setting, restoring implicit defaults.
func (s *Store) DeleteSetting(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Settings, key)
	return s.persist()
}

// AddExternalMetadataLink attaches an external catalogue reference to a
// design.
func (s *Store) AddExternalMetadataLink(link models.ExternalMetadataLink) (models.ExternalMetadataLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Designs[link.DesignID]; !ok {
		return models.ExternalMetadataLink{}, apperr.NotFoundf("design %s not found", link.DesignID)
	}
	link.ID = newID()
	link.CreatedAt = time.Now().UTC()
	s.data.ExternalMetadataLinks[link.ID] = link
	if err := s.persist(); err != nil {
		delete(s.data.ExternalMetadataLinks, link.ID)
		return models.ExternalMetadataLink{}, err
	}
	return link, nil
}

// ListExternalMetadataLinks returns every external link for a design.
func (s *Store) ListExternalMetadataLinks(designID string) []models.ExternalMetadataLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ExternalMetadataLink, 0)
	for _, l := range s.data.ExternalMetadataLinks {
		if l.DesignID == designID {
			out = append(out, l)
		}
	}
	return out
}
