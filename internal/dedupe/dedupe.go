// Package dedupe implements the two-stage duplicate detector: a
// pre-download heuristic (title+designer, filename+size) and a
// post-download cryptographic pass (SHA-256, external id).
package dedupe

import (
	"strings"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

// Service runs dedupe passes against a catalog repository.
type Service struct {
	Repo catalog.Repository
}

// NewService builds a dedupe Service over repo.
func NewService(repo catalog.Repository) *Service {
	return &Service{Repo: repo}
}

// decorativePrefixes are stripped before comparing titles, a bounded set of
// noise a chat caption commonly carries.
var decorativePrefixes = []string{
	"new:", "update:", "release:", "[wip]", "wip:", "free:", "download:",
}

// NormalizeTitle lowercases, trims, and strips one leading decorative
// prefix for fuzzy title comparison.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, prefix := range decorativePrefixes {
		if strings.HasPrefix(t, prefix) {
			t = strings.TrimSpace(strings.TrimPrefix(t, prefix))
			break
		}
	}
	return t
}

// NormalizeDesigner lowercases and trims a designer name for comparison.
func NormalizeDesigner(designer string) string {
	return strings.ToLower(strings.TrimSpace(designer))
}

// AttachmentDescriptor is the subset of an incoming attachment's metadata
// the filename+size heuristic needs.
type AttachmentDescriptor struct {
	Filename  string
	SizeBytes int64
}

// PreDownloadCandidate pairs the winning match type with the existing
// design it matched.
type PreDownloadCandidate struct {
	ExistingDesignID string
	MatchType        models.DuplicateMatchType
}

// ScanPreDownload finds title+designer and filename+size matches for an
// incoming design against the existing catalogue.
// The caller still creates newDesignID regardless of matches found; these
// candidates are advisory.
func (s *Service) ScanPreDownload(newDesignID, title, designer string, attachments []AttachmentDescriptor) []PreDownloadCandidate {
	var out []PreDownloadCandidate

	normTitle := NormalizeTitle(title)
	normDesigner := NormalizeDesigner(designer)
	if normTitle != "" {
		for _, existing := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
			if existing.ID == newDesignID || existing.Status == models.DesignDeleted {
				continue
			}
			if NormalizeTitle(existing.EffectiveTitle()) == normTitle &&
				NormalizeDesigner(existing.EffectiveDesigner()) == normDesigner {
				out = append(out, PreDownloadCandidate{ExistingDesignID: existing.ID, MatchType: models.MatchTitleDesigner})
			}
		}
	}

	for _, att := range attachments {
		if att.Filename == "" || att.SizeBytes <= 0 {
			continue
		}
		file, ok := s.findFileByFilenameSize(att.Filename, att.SizeBytes)
		if !ok || file.DesignID == newDesignID {
			continue
		}
		out = append(out, PreDownloadCandidate{ExistingDesignID: file.DesignID, MatchType: models.MatchFilenameSize})
	}

	return dedupeCandidates(out)
}

func (s *Service) findFileByFilenameSize(filename string, size int64) (models.DesignFile, bool) {
	for _, d := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
		for _, f := range s.Repo.ListDesignFiles(d.ID) {
			if f.Filename == filename && f.SizeBytes == size {
				return f, true
			}
		}
	}
	return models.DesignFile{}, false
}

func dedupeCandidates(in []PreDownloadCandidate) []PreDownloadCandidate {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, c := range in {
		key := c.ExistingDesignID + "|" + string(c.MatchType)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// RecordCandidates inserts a PENDING DuplicateCandidate row for each
// pre-download or post-download match, skipping any pair already pending:
// re-ingestion never produces duplicate candidate rows.
func (s *Service) RecordCandidates(designID string, candidates []PreDownloadCandidate) error {
	for _, c := range candidates {
		if _, err := s.Repo.CreateDuplicateCandidate(designID, c.ExistingDesignID, c.MatchType); err != nil {
			return err
		}
	}
	return nil
}

// ScanPostDownloadHash compares every DesignFile just created for design
// against every other design's files by SHA-256, recording a HASH
// candidate at confidence 1.0 for each cross-design match.
func (s *Service) ScanPostDownloadHash(designID string) error {
	design, ok := s.Repo.GetDesign(designID)
	if !ok {
		return apperr.NotFoundf("design %s not found", designID)
	}
	if design.Status == models.DesignDeleted {
		return nil
	}

	mine := make(map[string]bool)
	for _, f := range s.Repo.ListDesignFiles(designID) {
		if f.SHA256 != "" {
			mine[f.SHA256] = true
		}
	}
	if len(mine) == 0 {
		return nil
	}

	for _, other := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
		if other.ID == designID || other.Status == models.DesignDeleted {
			continue
		}
		for _, f := range s.Repo.ListDesignFiles(other.ID) {
			if f.SHA256 == "" || !mine[f.SHA256] {
				continue
			}
			if _, err := s.Repo.CreateDuplicateCandidate(designID, other.ID, models.MatchHash); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// ScanExternalID records an EXTERNAL_ID candidate at confidence 1.0 when an
// adapter supplies a stable external identifier matching another design's
// external metadata link.
func (s *Service) ScanExternalID(designID string, externalSource, externalID string) error {
	for _, other := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
		if other.ID == designID || other.Status == models.DesignDeleted {
			continue
		}
		for _, link := range s.Repo.ListExternalMetadataLinks(other.ID) {
			if link.Source == externalSource && link.ExternalID == externalID {
				_, err := s.Repo.CreateDuplicateCandidate(designID, other.ID, models.MatchExternalID)
				return err
			}
		}
	}
	return nil
}

// Merge folds candidateID into targetID via the catalog store:
// source/file/tag re-parenting, candidate soft-delete, and pending pair
// resolution.
func (s *Service) Merge(targetID, candidateID string) error {
	return s.Repo.MergeDesigns(targetID, candidateID)
}
