package workers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/archive"
	"github.com/AdamA817/printarr-sub001/internal/events"
	"github.com/AdamA817/printarr-sub001/internal/hashutil"
	"github.com/AdamA817/printarr-sub001/internal/library"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/queue"
	"github.com/AdamA817/printarr-sub001/internal/settings"
	"github.com/AdamA817/printarr-sub001/internal/sources"
)

// classifyFile maps an attachment's extension to the coarse DesignFileKind
// stored on a DesignFile row.
func classifyFile(extension string) models.DesignFileKind {
	ext := strings.ToLower(extension)
	switch ext {
	case ".stl", ".3mf", ".obj", ".step", ".stp":
		return models.FileKindModel
	case ".zip", ".rar", ".7z", ".tar":
		return models.FileKindArchive
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return models.FileKindImage
	default:
		return models.FileKindOther
	}
}

// DownloadDesign pulls every candidate file attached to a design's source
// message into its staging directory, hashing each as it lands and running
// the post-download dedupe scan once every file is in place.
func (p *Pipeline) DownloadDesign(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	design, ok := p.Repo.GetDesign(designID)
	if !ok {
		return nil, apperr.NotFoundf("design %s not found", designID)
	}

	attachments, src, err := p.messageAttachmentsForDesign(designID)
	if err != nil {
		return nil, err
	}
	channel, ok := p.Repo.GetChannel(src.ChannelID)
	if !ok {
		return nil, apperr.NotFoundf("channel %s not found", src.ChannelID)
	}
	adapter, err := p.Adapters(channel)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "resolve channel adapter", err)
	}

	if design.Status != models.DesignDownloading {
		if _, err := p.Repo.TransitionDesignStatus(designID, models.DesignDownloading); err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "transition design to downloading", err)
		}
		p.publish(ctx, events.EventDesignStatusChanged, designID, map[string]any{"status": models.DesignDownloading})
	}

	stageDir := p.stagingDir(designID)
	if err := ensureDir(stageDir); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "create staging directory", err)
	}

	// Adapters resolve bytes by the upstream id Scan reported, not the catalog
	// message id; the local-folder and upload adapters also read it as
	// FolderPath, which their Scan sets to the same value.
	item := sources.RawItem{UpstreamID: src.MessageID}
	if msg, ok := p.Repo.GetMessage(src.MessageID); ok {
		item.UpstreamID = msg.UpstreamID
		item.FolderPath = msg.UpstreamID
	}
	var downloaded []models.DesignFile
	var totalBytes int64

	for i, att := range attachments {
		if ctx.Err() != nil {
			return p.revertDownload(designID, ctx.Err())
		}
		filename := sanitizeFilename(att.Filename)
		dstPath := filepath.Join(stageDir, filename)

		fetched, err := adapter.FetchBytes(ctx, item, sources.RawFile{Filename: att.Filename, SizeBytes: att.SizeBytes, MIME: att.MIME})
		if err != nil {
			if ctx.Err() != nil {
				return p.revertDownload(designID, ctx.Err())
			}
			return nil, apperr.Wrap(apperr.KindUpstream, fmt.Sprintf("fetch attachment %s", att.Filename), err)
		}

		sha, size, err := writeAndHash(dstPath, fetched.Reader)
		fetched.Reader.Close()
		if err != nil {
			os.Remove(dstPath)
			if ctx.Err() != nil {
				return p.revertDownload(designID, ctx.Err())
			}
			return nil, apperr.Wrap(apperr.KindUpstream, fmt.Sprintf("download attachment %s", att.Filename), err)
		}

		if err := p.Repo.UpdateAttachmentDownloadState(att.ID, models.AttachmentDownloaded, dstPath, sha); err != nil {
			p.log(ctx).Warn("update attachment state failed", "attachment_id", att.ID, "error", err)
		}

		file, err := p.Repo.AddDesignFile(models.DesignFile{
			DesignID:     designID,
			RelativePath: filename,
			Filename:     filename,
			Extension:    strings.ToLower(filepath.Ext(filename)),
			SizeBytes:    size,
			SHA256:       sha,
			FileKind:     classifyFile(strings.ToLower(filepath.Ext(filename))),
			IsPrimary:    i == 0,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "record downloaded file", err)
		}
		downloaded = append(downloaded, file)
		totalBytes += size

		_ = p.Queue.Heartbeat(ctx, job.ID, i+1, len(attachments))
		p.publish(ctx, events.EventDesignFileAdded, designID, map[string]any{"fileId": file.ID, "filename": filename})
	}

	if len(downloaded) == 0 {
		return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("design %s has no downloadable attachments", designID))
	}

	if _, err := p.Repo.UpdateDesignFileSummary(designID); err != nil {
		p.log(ctx).Warn("update design file summary failed", "design_id", designID, "error", err)
	}

	if err := p.Dedupe.ScanPostDownloadHash(designID); err != nil {
		p.log(ctx).Warn("post-download dedupe scan failed", "design_id", designID, "error", err)
	}

	if _, err := p.Repo.TransitionDesignStatus(designID, models.DesignDownloaded); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "transition design to downloaded", err)
	}
	p.publish(ctx, events.EventDesignStatusChanged, designID, map[string]any{"status": models.DesignDownloaded})

	hasArchive := false
	for _, f := range downloaded {
		if f.FileKind == models.FileKindArchive {
			hasArchive = true
			break
		}
	}
	successor := queue.EnqueueParams{
		Kind:        models.JobImportToLibrary,
		Priority:    models.DefaultAutoQueuePriority,
		DesignID:    &designID,
		DisplayName: fmt.Sprintf("Import %s to library", design.EffectiveTitle()),
	}
	if hasArchive {
		successor.Kind = models.JobExtractArchive
		successor.DisplayName = fmt.Sprintf("Extract archives for %s", design.EffectiveTitle())
	}
	if _, err := p.Queue.Enqueue(ctx, successor); err != nil {
		p.log(ctx).Warn("enqueue download successor failed", "design_id", designID, "kind", successor.Kind, "error", err)
	}

	return map[string]any{"filesDownloaded": len(downloaded), "totalBytes": totalBytes}, nil
}

// revertDownload undoes a cancelled download attempt, putting the design
// back in WANTED so the user can retry.
func (p *Pipeline) revertDownload(designID string, cause error) (any, error) {
	if _, err := p.Repo.RevertDesignToWanted(designID); err != nil {
		p.logger().Warn("revert design status after cancel failed", "design_id", designID, "error", err)
	}
	return nil, cause
}

func writeAndHash(dstPath string, r io.Reader) (sha string, size int64, err error) {
	if err := ensureDir(filepath.Dir(dstPath)); err != nil {
		return "", 0, err
	}
	f, err := os.Create(dstPath)
	if err != nil {
		return "", 0, err
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return "", 0, copyErr
	}
	if closeErr != nil {
		return "", 0, closeErr
	}
	sha, err = hashutil.SHA256File(dstPath)
	if err != nil {
		return "", 0, err
	}
	return sha, n, nil
}

// ExtractArchive expands every top-level archive in a design's staging
// directory one level deep, recording each extracted file and optionally
// removing the archive afterward.
func (p *Pipeline) ExtractArchive(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	design, ok := p.Repo.GetDesign(designID)
	if !ok {
		return nil, apperr.NotFoundf("design %s not found", designID)
	}

	deleteAfter, err := p.Settings.GetBool(settings.KeyDeleteArchivesAfterExtraction)
	if err != nil {
		deleteAfter = false
	}
	var extractor archive.Extractor
	if p.Extractor != nil {
		extractor = *p.Extractor
	}
	extractor.DeleteAfterExtraction = deleteAfter

	stageDir := p.stagingDir(designID)
	result, err := extractor.ExtractDesignArchives(stageDir, func(cur, tot int) {
		_ = p.Queue.Heartbeat(ctx, job.ID, cur, tot)
	})
	if err != nil {
		return nil, err
	}

	existing := p.Repo.ListDesignFiles(designID)
	known := make(map[string]bool, len(existing))
	for _, f := range existing {
		known[f.RelativePath] = true
	}

	archiveFileIDs := make([]string, 0)
	for _, f := range existing {
		if f.FileKind == models.FileKindArchive {
			archiveFileIDs = append(archiveFileIDs, f.ID)
		}
	}

	var filesCreated int
	for _, rel := range result.FilesCreated {
		rel = filepath.ToSlash(rel)
		if known[rel] {
			continue
		}
		full := filepath.Join(stageDir, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		sha, err := hashutil.SHA256File(full)
		if err != nil {
			p.log(ctx).Warn("hash extracted file failed", "path", full, "error", err)
			continue
		}
		file, err := p.Repo.AddDesignFile(models.DesignFile{
			DesignID:      designID,
			RelativePath:  rel,
			Filename:      filepath.Base(rel),
			Extension:     strings.ToLower(filepath.Ext(rel)),
			SizeBytes:     info.Size(),
			SHA256:        sha,
			FileKind:      classifyFile(filepath.Ext(rel)),
			IsFromArchive: true,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "record extracted file", err)
		}
		filesCreated++
		p.publish(ctx, events.EventDesignFileAdded, designID, map[string]any{"fileId": file.ID, "filename": file.Filename})
	}

	if deleteAfter {
		for _, id := range archiveFileIDs {
			f, ok := findDesignFile(existing, id)
			if !ok {
				continue
			}
			full := filepath.Join(stageDir, filepath.FromSlash(f.RelativePath))
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				p.log(ctx).Warn("remove extracted archive failed", "path", full, "error", err)
				continue
			}
			if err := p.Repo.DeleteDesignFile(id); err != nil {
				p.log(ctx).Warn("delete archive file row failed", "file_id", id, "error", err)
			}
		}
	}

	if filesCreated > 0 {
		if _, err := p.Repo.UpdateDesignFileSummary(designID); err != nil {
			p.log(ctx).Warn("update design file summary failed", "design_id", designID, "error", err)
		}
		if _, err := p.Queue.Enqueue(ctx, queue.EnqueueParams{
			Kind:        models.JobImportToLibrary,
			Priority:    models.DefaultAutoQueuePriority,
			DesignID:    &designID,
			DisplayName: fmt.Sprintf("Import %s to library", design.EffectiveTitle()),
		}); err != nil {
			p.log(ctx).Warn("enqueue import to library failed", "design_id", designID, "error", err)
		}
	}

	return map[string]any{
		"archivesExtracted": result.ArchivesExtracted,
		"filesCreated":      filesCreated,
		"nestedArchives":    result.NestedArchives,
	}, nil
}

func findDesignFile(files []models.DesignFile, id string) (models.DesignFile, bool) {
	for _, f := range files {
		if f.ID == id {
			return f, true
		}
	}
	return models.DesignFile{}, false
}

// ImportToLibrary relocates a design's staged files into the organised
// library tree, templated from its designer/channel/title, resolving any
// directory-name collision before moving a single file.
func (p *Pipeline) ImportToLibrary(ctx context.Context, job models.Job) (any, error) {
	designID, err := requireDesignID(job)
	if err != nil {
		return nil, err
	}
	design, ok := p.Repo.GetDesign(designID)
	if !ok {
		return nil, apperr.NotFoundf("design %s not found", designID)
	}

	srcs := p.Repo.ListDesignSources(designID)
	channelTitle := ""
	if len(srcs) > 0 {
		if ch, ok := p.Repo.GetChannel(srcs[len(srcs)-1].ChannelID); ok {
			channelTitle = ch.Title
		}
	}

	tmpl, err := p.Settings.GetString(settings.KeyLibraryPathTemplate)
	if err != nil || tmpl == "" {
		tmpl = library.DefaultPathTemplate
	}
	rawRelDir := library.BuildRelativePath(tmpl, library.Vars{
		Designer: design.EffectiveDesigner(),
		Channel:  channelTitle,
		Title:    design.EffectiveTitle(),
	})
	relDir, err := library.ResolveConflict(p.LibraryRoot, rawRelDir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "resolve library conflict", err)
	}

	stageDir := p.stagingDir(designID)
	files := p.Repo.ListDesignFiles(designID)
	var moved int
	for i, f := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		src := filepath.Join(stageDir, filepath.FromSlash(f.RelativePath))
		newRel := filepath.ToSlash(filepath.Join(relDir, f.RelativePath))
		dst := filepath.Join(p.LibraryRoot, filepath.FromSlash(newRel))
		if err := library.MoveFile(src, dst); err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, fmt.Sprintf("move file %s", f.Filename), err)
		}
		if _, err := p.Repo.UpdateDesignFileLocation(f.ID, newRel); err != nil {
			p.log(ctx).Warn("update design file location failed", "file_id", f.ID, "error", err)
		}
		moved++
		_ = p.Queue.Heartbeat(ctx, job.ID, i+1, len(files))
	}
	library.RemoveEmptyDirs(stageDir, p.StagingRoot)

	if _, err := p.Repo.TransitionDesignStatus(designID, models.DesignOrganized); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "transition design to organized", err)
	}
	p.publish(ctx, events.EventDesignStatusChanged, designID, map[string]any{"status": models.DesignOrganized, "libraryPath": relDir})

	if _, err := p.Queue.Enqueue(ctx, queue.EnqueueParams{
		Kind:        models.JobDetectFamilyOverlap,
		Priority:    models.DefaultAutoQueuePriority,
		DesignID:    &designID,
		DisplayName: fmt.Sprintf("Detect family for %s", design.EffectiveTitle()),
	}); err != nil {
		p.log(ctx).Warn("enqueue family detection failed", "design_id", designID, "error", err)
	}

	if p.Preview.ShouldAutoQueueRender(designID) {
		if _, err := p.Queue.Enqueue(ctx, queue.EnqueueParams{
			Kind:        models.JobGenerateRender,
			Priority:    models.DefaultAutoQueuePriority,
			DesignID:    &designID,
			DisplayName: fmt.Sprintf("Render preview for %s", design.EffectiveTitle()),
		}); err != nil {
			p.log(ctx).Warn("enqueue generate render failed", "design_id", designID, "error", err)
		}
	}

	autoAnalyze, _ := p.Settings.GetBool(settings.KeyAIAutoAnalyzeOnImport)
	if autoAnalyze {
		if _, err := p.Queue.Enqueue(ctx, queue.EnqueueParams{
			Kind:        models.JobAIAnalyzeDesign,
			Priority:    models.DefaultAutoQueuePriority,
			DesignID:    &designID,
			DisplayName: fmt.Sprintf("AI analyze %s", design.EffectiveTitle()),
		}); err != nil {
			p.log(ctx).Warn("enqueue AI analyze failed", "design_id", designID, "error", err)
		}
	}

	for _, f := range files {
		if strings.EqualFold(f.Extension, ".3mf") {
			if _, err := p.Queue.Enqueue(ctx, queue.EnqueueParams{
				Kind:        models.JobAnalyze3MF,
				Priority:    models.DefaultAutoQueuePriority,
				DesignID:    &designID,
				DisplayName: fmt.Sprintf("Analyze 3MF for %s", design.EffectiveTitle()),
			}); err != nil {
				p.log(ctx).Warn("enqueue analyze 3mf failed", "design_id", designID, "error", err)
			}
			break
		}
	}

	return map[string]any{"filesMoved": moved, "libraryPath": relDir}, nil
}
