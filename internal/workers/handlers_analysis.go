package workers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/events"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/multicolor"
)

// Analyze3MF inspects every 3MF file belonging to a design for distinct
// base materials/colors, recording a 3MF_ANALYSIS multicolor verdict that
// outranks any prior heuristic guess.
func (p *Pipeline) Analyze3MF(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Repo.GetDesign(designID); !ok {
		return nil, apperr.NotFoundf("design %s not found", designID)
	}

	var analyzed int
	var anyMulticolor bool
	for _, f := range p.Repo.ListDesignFiles(designID) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.EqualFold(f.Extension, ".3mf") {
			continue
		}
		path := filepath.Join(p.LibraryRoot, filepath.FromSlash(f.RelativePath))
		result, err := multicolor.AnalyzeFile(path)
		if err != nil {
			p.log(ctx).Warn("analyze 3mf failed", "design_id", designID, "file_id", f.ID, "error", err)
			continue
		}
		analyzed++
		if result.IsMulticolor {
			anyMulticolor = true
		}
	}

	if analyzed == 0 {
		return map[string]any{"filesAnalyzed": 0}, nil
	}

	status := models.MulticolorNo
	if anyMulticolor {
		status = models.MulticolorYes
	}
	if _, err := p.Repo.SetDesignMulticolor(designID, status, models.MulticolorSource3MFAnalysis); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "record 3mf multicolor verdict", err)
	}
	p.publish(ctx, events.EventDesignStatusChanged, designID, map[string]any{"multicolor": status})

	return map[string]any{"filesAnalyzed": analyzed, "multicolor": status}, nil
}

// GenerateRender invokes the configured Rasterizer against a design's
// primary model file and records the resulting image as a rendered
// preview.
func (p *Pipeline) GenerateRender(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	if p.Rasterizer == nil {
		return nil, apperr.New(apperr.KindPermanent, "GENERATE_RENDER: no rasterizer configured, missing implementation")
	}
	if _, ok := p.Repo.GetDesign(designID); !ok {
		return nil, apperr.NotFoundf("design %s not found", designID)
	}

	var modelFile *models.DesignFile
	for _, f := range p.Repo.ListDesignFiles(designID) {
		if f.FileKind != models.FileKindModel {
			continue
		}
		candidate := f
		if candidate.IsPrimary {
			modelFile = &candidate
			break
		}
		if modelFile == nil {
			modelFile = &candidate
		}
	}
	if modelFile == nil {
		return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("design %s has no model file to render", designID))
	}

	modelPath := filepath.Join(p.LibraryRoot, filepath.FromSlash(modelFile.RelativePath))
	outPath := filepath.Join(p.LibraryRoot, filepath.Dir(filepath.FromSlash(modelFile.RelativePath)), modelFile.Filename+".render.png")

	if err := p.Rasterizer.Render(ctx, modelPath, outPath); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "render model", err)
	}

	asset, err := p.Preview.AddPreview(designID, models.PreviewSourceRendered, outPath, 0, 0, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "record rendered preview", err)
	}
	p.publish(ctx, events.EventDesignStatusChanged, designID, map[string]any{"previewId": asset.ID, "source": asset.Source})

	return map[string]any{"previewId": asset.ID}, nil
}

// DedupeReconcile re-runs the cryptographic post-download dedupe scan for a
// design, surfacing any new hash-match candidates for operator review.
func (p *Pipeline) DedupeReconcile(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Repo.GetDesign(designID); !ok {
		return nil, apperr.NotFoundf("design %s not found", designID)
	}
	if err := p.Dedupe.ScanPostDownloadHash(designID); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "scan post-download hashes", err)
	}

	var pending int
	for _, c := range p.Repo.ListPendingDuplicateCandidates() {
		if c.DesignID == designID || c.CandidateID == designID {
			pending++
		}
	}
	return map[string]any{"pendingCandidates": pending}, nil
}

// AIAnalyzeDesign invokes the configured AITagger for suggested tags, a
// multicolor verdict, and an optional AI-selected preview.
func (p *Pipeline) AIAnalyzeDesign(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	if p.AITagger == nil {
		return nil, apperr.New(apperr.KindPermanent, "AI_ANALYZE_DESIGN: no tagger configured, missing implementation")
	}
	design, ok := p.Repo.GetDesign(designID)
	if !ok {
		return nil, apperr.NotFoundf("design %s not found", designID)
	}
	files := p.Repo.ListDesignFiles(designID)

	analysis, err := p.AITagger.Analyze(ctx, design, files)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "AI analysis", err)
	}

	for _, name := range analysis.Tags {
		tag, err := p.Repo.EnsureTag(name, "ai")
		if err != nil {
			p.log(ctx).Warn("ensure AI tag failed", "design_id", designID, "tag", name, "error", err)
			continue
		}
		if err := p.Repo.TagDesign(designID, tag.ID, models.TagSourceAI); err != nil {
			p.log(ctx).Warn("tag design failed", "design_id", designID, "tag_id", tag.ID, "error", err)
		}
	}

	if analysis.Multicolor != nil {
		status := models.MulticolorNo
		if *analysis.Multicolor {
			status = models.MulticolorYes
		}
		if _, err := p.Repo.SetDesignMulticolor(designID, status, models.MulticolorSourceHeuristic); err != nil {
			p.log(ctx).Warn("set AI multicolor verdict failed", "design_id", designID, "error", err)
		}
	}

	if analysis.PreviewPath != "" {
		if _, err := p.Preview.AddPreview(designID, models.PreviewSourceAISelected, analysis.PreviewPath, 0, 0, 0); err != nil {
			p.log(ctx).Warn("record AI preview failed", "design_id", designID, "error", err)
		}
	}

	p.publish(ctx, events.EventDesignStatusChanged, designID, map[string]any{"aiTagsApplied": len(analysis.Tags)})
	return map[string]any{"tagsApplied": len(analysis.Tags)}, nil
}

// DetectFamilyOverlap runs family detection for a design. IMPORT_TO_LIBRARY
// enqueues it after every import, and an operator can enqueue it again to
// retry grouping after adding new files or correcting metadata.
func (p *Pipeline) DetectFamilyOverlap(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	result, err := p.Family.DetectAndAssign(designID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "detect family overlap", err)
	}
	if result.FamilyID != "" {
		p.publish(ctx, events.EventFamilyAssigned, designID, map[string]any{"familyId": result.FamilyID, "created": result.FamilyCreated})
	}
	return result, nil
}
