package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

// CreateDesignParams captures the fields required to register a new design.
type CreateDesignParams struct {
	CanonicalTitle    string
	CanonicalDesigner string
	MetadataAuthority string
	ImportSourceID    *string
}

// CreateDesign inserts a new design in the DISCOVERED status.
func (s *Store) CreateDesign(params CreateDesignParams) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	title := strings.TrimSpace(params.CanonicalTitle)
	if title == "" {
		return models.Design{}, apperr.Validationf("canonical title is required")
	}

	now := time.Now().UTC()
	designer := strings.TrimSpace(params.CanonicalDesigner)
	design := models.Design{
		ID:                newID(),
		CanonicalTitle:    title,
		CanonicalDesigner: designer,
		Multicolor:        models.MulticolorUnknown,
		Status:            models.DesignDiscovered,
		MetadataAuthority: params.MetadataAuthority,
		ImportSourceID:    params.ImportSourceID,
		SearchVector:      BuildSearchVector(title, designer),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.data.Designs[design.ID] = design
	if err := s.persist(); err != nil {
		delete(s.data.Designs, design.ID)
		return models.Design{}, err
	}
	s.invalidateCounts()
	return design, nil
}

// GetDesign returns the design with the given ID.
func (s *Store) GetDesign(id string) (models.Design, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data.Designs[id]
	return d, ok
}

// TransitionDesignStatus advances a design's status, enforcing the
// forward-only ordering (DELETED is reachable from any status).
func (s *Store) TransitionDesignStatus(id string, to models.DesignStatus) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data.Designs[id]
	if !ok {
		return models.Design{}, apperr.NotFoundf("design %s not found", id)
	}
	if !models.CanTransitionStatus(d.Status, to) {
		return models.Design{}, apperr.Conflictf("cannot move design %s from %s to %s", id, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	s.data.Designs[id] = d
	if err := s.persist(); err != nil {
		return models.Design{}, err
	}
	s.invalidateCounts()
	return d, nil
}

// RevertDesignToWanted moves a DOWNLOADING design back to WANTED after a
// cancelled download, the one sanctioned exception to the forward-only
// status chain.
func (s *Store) RevertDesignToWanted(id string) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data.Designs[id]
	if !ok {
		return models.Design{}, apperr.NotFoundf("design %s not found", id)
	}
	if d.Status != models.DesignDownloading {
		return d, nil
	}
	d.Status = models.DesignWanted
	d.UpdatedAt = time.Now().UTC()
	s.data.Designs[id] = d
	if err := s.persist(); err != nil {
		return models.Design{}, err
	}
	s.invalidateCounts()
	return d, nil
}

// DesignOverrides captures user-supplied corrections to catalogue metadata.
type DesignOverrides struct {
	TitleOverride    *string
	DesignerOverride *string
}

// ApplyDesignOverrides sets the user-facing title/designer overrides.
func (s *Store) ApplyDesignOverrides(id string, overrides DesignOverrides) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Designs[id]
	if !ok {
		return models.Design{}, apperr.NotFoundf("design %s not found", id)
	}
	if overrides.TitleOverride != nil {
		d.TitleOverride = overrides.TitleOverride
	}
	if overrides.DesignerOverride != nil {
		d.DesignerOverride = overrides.DesignerOverride
	}
	d.SearchVector = BuildSearchVector(d.EffectiveTitle(), d.EffectiveDesigner())
	d.UpdatedAt = time.Now().UTC()
	s.data.Designs[id] = d
	if err := s.persist(); err != nil {
		return models.Design{}, err
	}
	return d, nil
}

// SetDesignMulticolor writes a multicolor verdict, respecting source
// precedence (USER_OVERRIDE > 3MF_ANALYSIS > HEURISTIC).
func (s *Store) SetDesignMulticolor(id string, status models.MulticolorStatus, source models.MulticolorSource) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Designs[id]
	if !ok {
		return models.Design{}, apperr.NotFoundf("design %s not found", id)
	}
	if !models.MulticolorSourceWins(d.MulticolorSource, source) {
		return d, nil
	}
	d.Multicolor = status
	d.MulticolorSource = source
	d.UpdatedAt = time.Now().UTC()
	s.data.Designs[id] = d
	if err := s.persist(); err != nil {
		return models.Design{}, err
	}
	return d, nil
}

// AssignDesignFamily links a design to a family, or clears the link when
// familyID is nil. Clearing the link also clears the variant name.
func (s *Store) AssignDesignFamily(id string, familyID *string) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Designs[id]
	if !ok {
		return models.Design{}, apperr.NotFoundf("design %s not found", id)
	}
	d.FamilyID = familyID
	if familyID == nil {
		d.VariantName = ""
	}
	d.UpdatedAt = time.Now().UTC()
	s.data.Designs[id] = d
	if err := s.persist(); err != nil {
		return models.Design{}, err
	}
	return d, nil
}

// UpdateDesignFileSummary refreshes the denormalised primary file-type and
// total-size rollups after files are added or removed.
func (s *Store) UpdateDesignFileSummary(id string) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Designs[id]
	if !ok {
		return models.Design{}, apperr.NotFoundf("design %s not found", id)
	}

	var total int64
	primary := ""
	for _, f := range s.data.DesignFiles {
		if f.DesignID != id {
			continue
		}
		total += f.SizeBytes
		if f.IsPrimary || primary == "" {
			primary = strings.TrimPrefix(f.Extension, ".")
		}
	}
	d.TotalSizeBytes = total
	d.PrimaryFileType = primary
	d.UpdatedAt = time.Now().UTC()
	s.data.Designs[id] = d
	if err := s.persist(); err != nil {
		return models.Design{}, err
	}
	return d, nil
}

// SetDesignVariantName records the variant name the family detector derived
// for a design inside its family.
func (s *Store) SetDesignVariantName(id, variantName string) (models.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.Designs[id]
	if !ok {
		return models.Design{}, apperr.NotFoundf("design %s not found", id)
	}
	d.VariantName = variantName
	d.UpdatedAt = time.Now().UTC()
	s.data.Designs[id] = d
	if err := s.persist(); err != nil {
		return models.Design{}, err
	}
	return d, nil
}

// DesignFilter narrows ListDesigns; zero values are ignored.
type DesignFilter struct {
	Status     models.DesignStatus
	FamilyID   string
	Multicolor models.MulticolorStatus
	Query      string
}

// ListDesigns returns designs matching filter. With a Query, results are
// ranked by the weighted search vector (title hits above designer hits,
// trigram fallback for substring terms); without one they sort newest
// first.
func (s *Store) ListDesigns(filter DesignFilter) []models.Design {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Design, 0)
	ranks := make(map[string]float64)
	query := strings.TrimSpace(filter.Query)
	for _, d := range s.data.Designs {
		// Soft-deleted designs are excluded unless explicitly requested.
		if filter.Status == "" && d.Status == models.DesignDeleted {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.FamilyID != "" && (d.FamilyID == nil || *d.FamilyID != filter.FamilyID) {
			continue
		}
		if filter.Multicolor != "" && d.Multicolor != filter.Multicolor {
			continue
		}
		if query != "" {
			rank := searchRank(designSearchVector(d), query)
			if rank <= 0 {
				continue
			}
			ranks[d.ID] = rank
		}
		out = append(out, d)
	}

	if query != "" {
		sort.Slice(out, func(i, j int) bool {
			if ranks[out[i].ID] != ranks[out[j].ID] {
				return ranks[out[i].ID] > ranks[out[j].ID]
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	return out
}

// AddDesignSource records that a message contributed to a design.
func (s *Store) AddDesignSource(designID, channelID, messageID string) (models.DesignSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Designs[designID]; !ok {
		return models.DesignSource{}, apperr.NotFoundf("design %s not found", designID)
	}
	src := models.DesignSource{
		ID:        newID(),
		DesignID:  designID,
		ChannelID: channelID,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
	s.data.DesignSources[src.ID] = src
	if err := s.persist(); err != nil {
		delete(s.data.DesignSources, src.ID)
		return models.DesignSource{}, err
	}
	return src, nil
}

// ListDesignSources returns every source message contributing to a design,
// oldest first.
func (s *Store) ListDesignSources(designID string) []models.DesignSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DesignSource, 0)
	for _, src := range s.data.DesignSources {
		if src.DesignID == designID {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AddDesignFile records a concrete on-disk file belonging to a design.
func (s *Store) AddDesignFile(file models.DesignFile) (models.DesignFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Designs[file.DesignID]; !ok {
		return models.DesignFile{}, apperr.NotFoundf("design %s not found", file.DesignID)
	}
	file.ID = newID()
	file.CreatedAt = time.Now().UTC()
	s.data.DesignFiles[file.ID] = file
	if err := s.persist(); err != nil {
		delete(s.data.DesignFiles, file.ID)
		return models.DesignFile{}, err
	}
	return file, nil
}

// ListDesignFiles returns every file belonging to a design.
func (s *Store) ListDesignFiles(designID string) []models.DesignFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DesignFile, 0)
	for _, f := range s.data.DesignFiles {
		if f.DesignID == designID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out
}

// UpdateDesignFileLocation rewrites a file's relative path, used when
// EXTRACT_ARCHIVE spreads an archive's contents across new paths and when
// IMPORT_TO_LIBRARY moves staging files under their organised destination.
func (s *Store) UpdateDesignFileLocation(id, relativePath string) (models.DesignFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.data.DesignFiles[id]
	if !ok {
		return models.DesignFile{}, apperr.NotFoundf("design file %s not found", id)
	}
	f.RelativePath = relativePath
	s.data.DesignFiles[id] = f
	if err := s.persist(); err != nil {
		return models.DesignFile{}, err
	}
	return f, nil
}

// DeleteDesignFile removes a file row, used when an extracted archive is
// deleted from staging per the delete_archives_after_extraction setting.
func (s *Store) DeleteDesignFile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.DesignFiles[id]; !ok {
		return apperr.NotFoundf("design file %s not found", id)
	}
	delete(s.data.DesignFiles, id)
	return s.persist()
}

// FindDesignFileBySHA256 looks for an existing file with the given hash,
// used by the post-download dedupe pass.
func (s *Store) FindDesignFileBySHA256(sha256 string) (models.DesignFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.data.DesignFiles {
		if f.SHA256 == sha256 {
			return f, true
		}
	}
	return models.DesignFile{}, false
}

// invalidateCounts forces the next Counts() call to recompute immediately.
// Must be called with s.mu held.
func (s *Store) invalidateCounts() {
	s.counts.mu.Lock()
	s.counts.exactAt = time.Time{}
	s.counts.approxAt = time.Time{}
	s.counts.mu.Unlock()
}

// Counts returns the dashboard count summary, recomputing at most every
// exactCountTTL and falling back to the last computed value for cheaper
// approximate reads in between.
//
// The cache check and the recompute hold their locks separately: a writer
// invalidating the cache holds s.mu, so computing under counts.mu would
// invert the lock order.
func (s *Store) Counts(approximate bool) CountSummary {
	now := time.Now().UTC()
	s.counts.mu.Lock()
	if approximate && now.Sub(s.counts.approxAt) < approxCountTTL {
		cached := s.counts.approx
		s.counts.mu.Unlock()
		return cached
	}
	if !approximate && now.Sub(s.counts.exactAt) < exactCountTTL {
		cached := s.counts.exact
		s.counts.mu.Unlock()
		return cached
	}
	s.counts.mu.Unlock()

	summary := s.computeCounts()

	s.counts.mu.Lock()
	s.counts.exact = summary
	s.counts.exactAt = now
	s.counts.approx = summary
	s.counts.approxAt = now
	s.counts.mu.Unlock()
	return summary
}

func (s *Store) computeCounts() CountSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var summary CountSummary
	for _, d := range s.data.Designs {
		summary.TotalDesigns++
		switch d.Status {
		case models.DesignDiscovered, models.DesignWanted:
			summary.PendingDesigns++
		case models.DesignDownloaded, models.DesignOrganized:
			summary.DownloadedDesigns++
		}
	}
	for _, c := range s.data.DuplicateCandidates {
		if c.Status == models.DuplicatePending {
			summary.PendingDuplicates++
		}
	}
	return summary
}
