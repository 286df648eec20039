package catalog

import (
	"sort"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

// CreateDuplicateCandidate records a pending duplicate pair, skipping the
// insert if an equivalent pending pair already exists.
func (s *Store) CreateDuplicateCandidate(designID, candidateID string, matchType models.DuplicateMatchType) (models.DuplicateCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.data.DuplicateCandidates {
		if c.Status != models.DuplicatePending {
			continue
		}
		if (c.DesignID == designID && c.CandidateID == candidateID) ||
			(c.DesignID == candidateID && c.CandidateID == designID) {
			return c, nil
		}
	}

	now := time.Now().UTC()
	candidate := models.DuplicateCandidate{
		ID:          newID(),
		DesignID:    designID,
		CandidateID: candidateID,
		MatchType:   matchType,
		Confidence:  models.DuplicateConfidence[matchType],
		Status:      models.DuplicatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.data.DuplicateCandidates[candidate.ID] = candidate
	if err := s.persist(); err != nil {
		delete(s.data.DuplicateCandidates, candidate.ID)
		return models.DuplicateCandidate{}, err
	}
	s.invalidateCounts()
	return candidate, nil
}

// ResolveDuplicateCandidate marks a pending candidate merged or rejected.
func (s *Store) ResolveDuplicateCandidate(id string, status models.DuplicateCandidateStatus) (models.DuplicateCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.DuplicateCandidates[id]
	if !ok {
		return models.DuplicateCandidate{}, apperr.NotFoundf("duplicate candidate %s not found", id)
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	s.data.DuplicateCandidates[id] = c
	if err := s.persist(); err != nil {
		return models.DuplicateCandidate{}, err
	}
	s.invalidateCounts()
	return c, nil
}

// ListPendingDuplicateCandidates returns every unresolved candidate pair,
// newest first.
func (s *Store) ListPendingDuplicateCandidates() []models.DuplicateCandidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DuplicateCandidate, 0)
	for _, c := range s.data.DuplicateCandidates {
		if c.Status == models.DuplicatePending {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// MergeDesigns folds candidate into target: re-parents its sources, files,
// and tags, marks it DELETED, and resolves any pending duplicate pair
// between the two. Used by both manual merge and the post-download
// cryptographic dedupe pass.
func (s *Store) MergeDesigns(targetID, candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Designs[targetID]; !ok {
		return apperr.NotFoundf("design %s not found", targetID)
	}
	candidate, ok := s.data.Designs[candidateID]
	if !ok {
		return apperr.NotFoundf("design %s not found", candidateID)
	}

	for id, src := range s.data.DesignSources {
		if src.DesignID == candidateID {
			src.DesignID = targetID
			s.data.DesignSources[id] = src
		}
	}
	for id, f := range s.data.DesignFiles {
		if f.DesignID == candidateID {
			f.DesignID = targetID
			s.data.DesignFiles[id] = f
		}
	}
	for id, p := range s.data.PreviewAssets {
		if p.DesignID == candidateID {
			p.DesignID = targetID
			p.IsPrimary = false
			s.data.PreviewAssets[id] = p
		}
	}
	for _, dt := range s.data.DesignTags[candidateID] {
		found := false
		for _, existing := range s.data.DesignTags[targetID] {
			if existing.TagID == dt.TagID {
				found = true
				break
			}
		}
		if !found {
			dt.DesignID = targetID
			s.data.DesignTags[targetID] = append(s.data.DesignTags[targetID], dt)
		}
	}
	delete(s.data.DesignTags, candidateID)

	candidate.Status = models.DesignDeleted
	candidate.UpdatedAt = time.Now().UTC()
	s.data.Designs[candidateID] = candidate

	for id, c := range s.data.DuplicateCandidates {
		if c.Status != models.DuplicatePending {
			continue
		}
		if (c.DesignID == targetID && c.CandidateID == candidateID) ||
			(c.DesignID == candidateID && c.CandidateID == targetID) {
			c.Status = models.DuplicateMerged
			c.UpdatedAt = time.Now().UTC()
			s.data.DuplicateCandidates[id] = c
		}
	}

	if err := s.persist(); err != nil {
		return err
	}
	s.invalidateCounts()
	return nil
}

// CreateFamily registers a new design family grouping.
func (s *Store) CreateFamily(name string, method models.FamilyDetectionMethod, confidence float64) (models.DesignFamily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	family := models.DesignFamily{
		ID:                  newID(),
		Name:                name,
		DetectionMethod:     method,
		DetectionConfidence: confidence,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.data.Families[family.ID] = family
	if err := s.persist(); err != nil {
		delete(s.data.Families, family.ID)
		return models.DesignFamily{}, err
	}
	return family, nil
}

// GetFamily returns the family with the given ID.
func (s *Store) GetFamily(id string) (models.DesignFamily, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.data.Families[id]
	return f, ok
}

// ListFamilies returns every design family.
func (s *Store) ListFamilies() []models.DesignFamily {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DesignFamily, 0, len(s.data.Families))
	for _, f := range s.data.Families {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListDesignsByFamily returns every design assigned to a family.
func (s *Store) ListDesignsByFamily(familyID string) []models.Design {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Design, 0)
	for _, d := range s.data.Designs {
		if d.FamilyID != nil && *d.FamilyID == familyID {
			out = append(out, d)
		}
	}
	return out
}

// AddPreviewAsset attaches a preview image to a design. If isPrimary is true
// it demotes the design's previous primary preview first.
func (s *Store) AddPreviewAsset(asset models.PreviewAsset) (models.PreviewAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Designs[asset.DesignID]; !ok {
		return models.PreviewAsset{}, apperr.NotFoundf("design %s not found", asset.DesignID)
	}
	asset.ID = newID()
	asset.CreatedAt = time.Now().UTC()

	if asset.IsPrimary {
		for id, existing := range s.data.PreviewAssets {
			if existing.DesignID == asset.DesignID && existing.IsPrimary {
				existing.IsPrimary = false
				s.data.PreviewAssets[id] = existing
			}
		}
	}
	s.data.PreviewAssets[asset.ID] = asset
	if err := s.persist(); err != nil {
		delete(s.data.PreviewAssets, asset.ID)
		return models.PreviewAsset{}, err
	}
	return asset, nil
}

// ListPreviewAssets returns every preview for a design, primary first, then
// by descending source priority.
func (s *Store) ListPreviewAssets(designID string) []models.PreviewAsset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PreviewAsset, 0)
	for _, p := range s.data.PreviewAssets {
		if p.DesignID == designID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return models.PreviewPriority(out[i].Source) > models.PreviewPriority(out[j].Source)
	})
	return out
}
