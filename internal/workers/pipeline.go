package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/archive"
	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/dedupe"
	"github.com/AdamA817/printarr-sub001/internal/events"
	"github.com/AdamA817/printarr-sub001/internal/family"
	"github.com/AdamA817/printarr-sub001/internal/ingest"
	"github.com/AdamA817/printarr-sub001/internal/library"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/observability/logging"
	"github.com/AdamA817/printarr-sub001/internal/preview"
	"github.com/AdamA817/printarr-sub001/internal/queue"
	"github.com/AdamA817/printarr-sub001/internal/settings"
	"github.com/AdamA817/printarr-sub001/internal/sources"
)

// AdapterResolver returns the source adapter that serves a channel. Each
// handler resolves it once per job and uses that adapter for every Scan and
// FetchBytes call of the job; the resolver built in cmd/server constructs a
// new adapter on each call.
type AdapterResolver func(channel models.Channel) (sources.Adapter, error)

// Rasterizer renders a preview image from a model file. It is an external
// collaborator the pipeline invokes as a job step; no
// in-process implementation ships with this service.
type Rasterizer interface {
	Render(ctx context.Context, modelPath, outPath string) error
}

// AITagger produces tag and multicolor suggestions for a design. Like
// Rasterizer, it is an external collaborator invoked as a job step.
type AITagger interface {
	Analyze(ctx context.Context, design models.Design, files []models.DesignFile) (AIAnalysis, error)
}

// AIAnalysis is the structured result an AITagger returns for one design.
type AIAnalysis struct {
	Tags        []string
	Multicolor  *bool
	PreviewPath string
}

// Pipeline implements one handler method per models.JobKind,
// sharing the catalog repository and domain services across every job it
// processes.
type Pipeline struct {
	Repo     catalog.Repository
	Queue    *queue.Queue
	Dedupe   *dedupe.Service
	Family   *family.Service
	Preview  *preview.Service
	Settings *settings.Service
	Ingest   *ingest.Service
	Events   events.Broadcaster
	Logger   *slog.Logger

	Adapters    AdapterResolver
	Extractor   *archive.Extractor
	Rasterizer  Rasterizer
	AITagger    AITagger
	StagingRoot string
	LibraryRoot string
}

// HandlerFor returns the Worker Handler for one job kind.
func (p *Pipeline) HandlerFor(kind models.JobKind) Handler {
	switch kind {
	case models.JobBackfillChannel:
		return p.BackfillChannel
	case models.JobSyncChannelLive:
		return p.SyncChannelLive
	case models.JobDownloadDesign:
		return p.DownloadDesign
	case models.JobExtractArchive:
		return p.ExtractArchive
	case models.JobImportToLibrary:
		return p.ImportToLibrary
	case models.JobAnalyze3MF:
		return p.Analyze3MF
	case models.JobGenerateRender:
		return p.GenerateRender
	case models.JobDedupeReconcile:
		return p.DedupeReconcile
	case models.JobDownloadImportRecord:
		return p.DownloadImportRecord
	case models.JobAIAnalyzeDesign:
		return p.AIAnalyzeDesign
	case models.JobDetectFamilyOverlap:
		return p.DetectFamilyOverlap
	default:
		return func(ctx context.Context, job models.Job) (any, error) {
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("unknown job kind %q", job.Kind))
		}
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// log annotates the pipeline logger with the claimed job's id when the
// handler context carries one, so a handler's warnings line up with the
// worker's own lifecycle records.
func (p *Pipeline) log(ctx context.Context) *slog.Logger {
	logger := p.logger()
	if jobID, ok := logging.JobIDFromContext(ctx); ok {
		logger = logger.With("job_id", jobID)
	}
	return logger
}

func (p *Pipeline) publish(ctx context.Context, t events.EventType, entityID string, data any) {
	if p.Events == nil {
		return
	}
	_ = p.Events.Publish(ctx, events.Event{Type: t, EntityID: entityID, Data: data, OccurredAt: time.Now().UTC()})
}

// stagingDir is where an in-flight design's downloaded/extracted files
// live before IMPORT_TO_LIBRARY relocates them.
func (p *Pipeline) stagingDir(designID string) string {
	return filepath.Join(p.StagingRoot, designID)
}

// requireDesignID extracts job.DesignID or fails permanently: every
// design-scoped job kind is enqueued with one.
func requireDesignID(job models.Job) (string, error) {
	if job.DesignID == nil || *job.DesignID == "" {
		return "", apperr.New(apperr.KindPermanent, fmt.Sprintf("job %s (%s) missing design id", job.ID, job.Kind))
	}
	return *job.DesignID, nil
}

func requireChannelID(job models.Job) (string, error) {
	if job.ChannelID == nil || *job.ChannelID == "" {
		return "", apperr.New(apperr.KindPermanent, fmt.Sprintf("job %s (%s) missing channel id", job.ID, job.Kind))
	}
	return *job.ChannelID, nil
}

// downloadImportRecordPayload is the JSON payload for DOWNLOAD_IMPORT_RECORD
// jobs, which operate on an ImportRecord rather than a design or channel.
type downloadImportRecordPayload struct {
	FolderID string `json:"folderId"`
	RecordID string `json:"recordId"`
}

// BackfillChannel pages a channel's adapter from the beginning of its
// history, ingesting every item, bounded by the channel's backfill mode.
func (p *Pipeline) BackfillChannel(ctx context.Context, job models.Job) (any, error) {
	channelID, err := requireChannelID(job)
	if err != nil {
		return nil, err
	}
	channel, ok := p.Repo.GetChannel(channelID)
	if !ok {
		return nil, apperr.NotFoundf("channel %s not found", channelID)
	}
	adapter, err := p.Adapters(channel)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "resolve channel adapter", err)
	}

	var cutoff time.Time
	if channel.BackfillMode == models.BackfillLastNDays && channel.BackfillValue > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -channel.BackfillValue)
	}

	var ingested, designsCreated int
	cursor := ""
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		page, err := adapter.Scan(ctx, cursor)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUpstream, "scan channel", err)
		}
		for _, item := range page.Items {
			if channel.BackfillMode == models.BackfillLastNDays && !cutoff.IsZero() && item.Timestamp.Before(cutoff) {
				continue
			}
			result, err := p.Ingest.IngestItem(ctx, channel, item, "")
			if err != nil {
				return nil, err
			}
			ingested++
			if result.DesignCreated {
				designsCreated++
			}
			if channel.BackfillMode == models.BackfillLastNMessages && channel.BackfillValue > 0 && ingested >= channel.BackfillValue {
				cursor = item.UpstreamID
				goto done
			}
		}
		if len(page.Items) == 0 || page.NextCursor == "" || page.NextCursor == cursor {
			if page.NextCursor != "" {
				cursor = page.NextCursor
			}
			break
		}
		cursor = page.NextCursor
		_ = p.Queue.Heartbeat(ctx, job.ID, ingested, 0)
	}
done:
	if _, err := p.Repo.UpdateChannel(channelID, catalog.ChannelUpdate{SyncCursor: &cursor}); err != nil {
		p.log(ctx).Warn("update sync cursor failed", "channel_id", channelID, "error", err)
	}
	p.publish(ctx, events.EventSyncStatus, channelID, map[string]any{"mode": "backfill", "ingested": ingested})
	return map[string]any{"itemsIngested": ingested, "designsCreated": designsCreated}, nil
}

// SyncChannelLive resumes scanning a channel from its last stored cursor,
// ingesting only new items since the previous sync.
func (p *Pipeline) SyncChannelLive(ctx context.Context, job models.Job) (any, error) {
	channelID, err := requireChannelID(job)
	if err != nil {
		return nil, err
	}
	channel, ok := p.Repo.GetChannel(channelID)
	if !ok {
		return nil, apperr.NotFoundf("channel %s not found", channelID)
	}
	adapter, err := p.Adapters(channel)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "resolve channel adapter", err)
	}

	page, err := adapter.Scan(ctx, channel.SyncCursor)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "scan channel", err)
	}

	var ingested, designsCreated int
	for _, item := range page.Items {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result, err := p.Ingest.IngestItem(ctx, channel, item, "")
		if err != nil {
			return nil, err
		}
		ingested++
		if result.DesignCreated {
			designsCreated++
		}
	}

	if page.NextCursor != "" && page.NextCursor != channel.SyncCursor {
		if _, err := p.Repo.UpdateChannel(channelID, catalog.ChannelUpdate{SyncCursor: &page.NextCursor}); err != nil {
			p.log(ctx).Warn("update sync cursor failed", "channel_id", channelID, "error", err)
		}
	}
	p.publish(ctx, events.EventSyncStatus, channelID, map[string]any{"mode": "live", "ingested": ingested})
	return map[string]any{"itemsIngested": ingested, "designsCreated": designsCreated}, nil
}

// DownloadImportRecord ingests one staged ImportRecord through the upload
// (or local-folder) adapter bound to its folder, marking the record
// IMPORTED, SKIPPED or FAILED once ingestion finishes.
func (p *Pipeline) DownloadImportRecord(ctx context.Context, job models.Job) (any, error) {
	var payload downloadImportRecordPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.RecordID == "" {
		return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("job %s malformed DOWNLOAD_IMPORT_RECORD payload", job.ID))
	}

	var record models.ImportRecord
	found := false
	for _, r := range p.Repo.ListImportRecords(payload.FolderID) {
		if r.ID == payload.RecordID {
			record, found = r, true
			break
		}
	}
	if !found {
		return nil, apperr.NotFoundf("import record %s not found", payload.RecordID)
	}

	virtualChannel, ok := p.channelForFolder(payload.FolderID)
	if !ok {
		return nil, apperr.NotFoundf("virtual channel for folder %s not found", payload.FolderID)
	}
	adapter, err := p.Adapters(virtualChannel)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "resolve folder adapter", err)
	}

	page, err := adapter.Scan(ctx, "")
	if err != nil {
		_, _ = p.Repo.CompleteImportRecord(record.ID, models.ImportOutcomeFailed, nil, err.Error())
		return nil, apperr.Wrap(apperr.KindUpstream, "scan import folder", err)
	}

	for _, item := range page.Items {
		if item.UpstreamID != record.SourcePath && item.UpstreamID != record.ID {
			continue
		}
		result, err := p.Ingest.IngestItem(ctx, virtualChannel, item, payload.FolderID)
		if err != nil {
			_, _ = p.Repo.CompleteImportRecord(record.ID, models.ImportOutcomeFailed, nil, err.Error())
			return nil, err
		}
		outcome := models.ImportOutcomeOK
		var designID *string
		if result.DesignID != "" {
			designID = &result.DesignID
		} else {
			outcome = models.ImportOutcomeSkipped
		}
		updated, err := p.Repo.CompleteImportRecord(record.ID, outcome, designID, "")
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "complete import record", err)
		}
		return map[string]any{"outcome": updated.Outcome, "designId": result.DesignID}, nil
	}

	_, _ = p.Repo.CompleteImportRecord(record.ID, models.ImportOutcomeSkipped, nil, "")
	return map[string]any{"outcome": models.ImportOutcomeSkipped}, nil
}

// channelForFolder walks folderID back to the virtual channel of its owning
// import source, so the adapter resolver sees the same channel the rest of
// the pipeline does.
func (p *Pipeline) channelForFolder(folderID string) (models.Channel, bool) {
	for _, src := range p.Repo.ListImportSources() {
		for _, folder := range p.Repo.ListImportSourceFolders(src.ID) {
			if folder.ID == folderID {
				return p.Repo.GetChannel(src.ChannelID)
			}
		}
	}
	return models.Channel{}, false
}

// messageAttachmentsForDesign resolves the candidate-design attachments of
// the message behind a design's newest source (the last entry
// ListDesignSources returns), returning that source alongside them.
func (p *Pipeline) messageAttachmentsForDesign(designID string) ([]models.Attachment, models.DesignSource, error) {
	srcs := p.Repo.ListDesignSources(designID)
	if len(srcs) == 0 {
		return nil, models.DesignSource{}, apperr.NotFoundf("design %s has no sources", designID)
	}
	src := srcs[len(srcs)-1]

	message, ok := p.Repo.GetMessage(src.MessageID)
	if !ok {
		return nil, src, apperr.NotFoundf("message %s not found", src.MessageID)
	}
	var out []models.Attachment
	for _, att := range p.Repo.ListAttachmentsByMessage(message.ID) {
		if att.IsCandidateDesign {
			out = append(out, att)
		}
	}
	return out, src, nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "file"
	}
	return library.SanitisePathComponent(name)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
