// Package preview selects and records a design's primary preview image and
// decides when a render job should be auto-queued.
package preview

import (
	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/settings"
)

// Service attaches preview assets to designs, keeping the is_primary
// invariant (at most one per design, highest-priority source wins).
type Service struct {
	Repo     catalog.Repository
	Settings *settings.Service
}

// NewService builds a preview Service over repo.
func NewService(repo catalog.Repository) *Service {
	return &Service{Repo: repo, Settings: settings.NewService(repo)}
}

// AddPreview records a new preview asset for a design. isPrimary is computed
// from the fixed source-priority ordering rather than taken from the
// caller: the new asset becomes primary only if no existing preview
// outranks it.
func (s *Service) AddPreview(designID string, source models.PreviewSource, filePath string, width, height, sortOrder int) (models.PreviewAsset, error) {
	if _, ok := s.Repo.GetDesign(designID); !ok {
		return models.PreviewAsset{}, apperr.NotFoundf("design %s not found", designID)
	}

	existing := s.Repo.ListPreviewAssets(designID)
	becomesPrimary := true
	for _, p := range existing {
		if models.PreviewPriority(p.Source) > models.PreviewPriority(source) {
			becomesPrimary = false
			break
		}
	}

	asset := models.PreviewAsset{
		DesignID:  designID,
		Source:    source,
		FilePath:  filePath,
		Width:     width,
		Height:    height,
		IsPrimary: becomesPrimary,
		SortOrder: sortOrder,
	}
	return s.Repo.AddPreviewAsset(asset)
}

// ShouldAutoQueueRender reports whether a GENERATE_RENDER job should be
// enqueued for a design that just finished import: true only when it has
// zero existing previews and the operator setting is enabled.
func (s *Service) ShouldAutoQueueRender(designID string) bool {
	if len(s.Repo.ListPreviewAssets(designID)) != 0 {
		return false
	}
	enabled, err := s.Settings.GetBool(settings.KeyAutoQueueRenderAfterImport)
	if err != nil {
		return false
	}
	return enabled
}

// Primary returns a design's current primary preview, if any.
func (s *Service) Primary(designID string) (models.PreviewAsset, bool) {
	for _, p := range s.Repo.ListPreviewAssets(designID) {
		if p.IsPrimary {
			return p, true
		}
	}
	return models.PreviewAsset{}, false
}
