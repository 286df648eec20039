// Package ingest normalises raw upstream items into catalog rows: it
// upserts messages and attachments idempotently, seeds new designs, runs
// the pre-download dedupe pass, the multicolor and auto-tag heuristics,
// and enqueues the first pipeline job per the channel's download mode.
package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/dedupe"
	"github.com/AdamA817/printarr-sub001/internal/events"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/multicolor"
	"github.com/AdamA817/printarr-sub001/internal/queue"
	"github.com/AdamA817/printarr-sub001/internal/sources"
	"github.com/AdamA817/printarr-sub001/internal/tagging"
)

// Service turns source-adapter RawItems into catalog state. One Service is
// shared by every BACKFILL_CHANNEL / SYNC_CHANNEL_LIVE job, the same way a
// single dedupe/family service is shared across workers.
type Service struct {
	Repo   catalog.Repository
	Dedupe *dedupe.Service
	Queue  *queue.Queue
	Events events.Broadcaster
}

// NewService builds an ingest Service over the given collaborators.
func NewService(repo catalog.Repository, q *queue.Queue, broadcaster events.Broadcaster) *Service {
	return &Service{
		Repo:   repo,
		Dedupe: dedupe.NewService(repo),
		Queue:  q,
		Events: broadcaster,
	}
}

// Result summarises what IngestItem did, so BACKFILL_CHANNEL/
// SYNC_CHANNEL_LIVE can aggregate counts into their job result blob.
type Result struct {
	MessageCreated bool
	DesignID       string
	DesignCreated  bool
	JobID          string
}

// IngestItem normalises a single RawItem scanned from channel's adapter
// into catalog rows. folderID is non-empty for import-source-driven
// adapters (local-folder, direct-upload) and causes the matching
// ImportRecord to be upserted alongside the message.
func (s *Service) IngestItem(ctx context.Context, channel models.Channel, item sources.RawItem, folderID string) (Result, error) {
	msg := models.Message{
		ChannelID:  channel.ID,
		UpstreamID: item.UpstreamID,
		Timestamp:  item.Timestamp,
		Author:     item.Author,
		Caption:    item.Caption,
		HasMedia:   len(item.Files) > 0,
	}
	message, created, err := s.Repo.UpsertMessage(msg)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindPermanent, "upsert message", err)
	}

	// A message seen before was fully ingested before: re-scanning the same
	// upstream state must not create new attachments, designs, or jobs. The
	// existing design, if any, is reported so import-record callers can
	// still link their outcome to it.
	if !created {
		designID, _ := s.findDesignForMessage(message.ID)
		return Result{MessageCreated: false, DesignID: designID}, nil
	}

	var filenames []string
	var descriptors []dedupe.AttachmentDescriptor
	var candidateFiles []sources.RawFile
	hasCandidate := false
	for _, f := range item.Files {
		ext := strings.ToLower(filepath.Ext(f.Filename))
		att := models.Attachment{
			MessageID: message.ID,
			MediaKind: mediaKind(f),
			Filename:  f.Filename,
			MIME:      f.MIME,
			SizeBytes: f.SizeBytes,
			Extension: ext,
		}
		created, err := s.Repo.CreateAttachment(att)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindPermanent, "create attachment", err)
		}
		filenames = append(filenames, f.Filename)
		descriptors = append(descriptors, dedupe.AttachmentDescriptor{Filename: f.Filename, SizeBytes: f.SizeBytes})
		if created.IsCandidateDesign || f.IsCandidateModel {
			hasCandidate = true
			candidateFiles = append(candidateFiles, f)
		}
	}

	indicatesDesign := hasCandidate || captionIndicatesDesign(item.Caption, item.TitleHint)
	if !indicatesDesign {
		return Result{MessageCreated: created}, nil
	}

	title := resolveTitle(item)
	designer := resolveDesigner(item)

	preCandidates := s.Dedupe.ScanPreDownload("", title, designer, descriptors)

	design, err := s.Repo.CreateDesign(catalog.CreateDesignParams{
		CanonicalTitle:    title,
		CanonicalDesigner: designer,
		MetadataAuthority: string(channel.ID),
		ImportSourceID:    nonEmptyPtr(folderID),
	})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindPermanent, "create design", err)
	}

	if len(preCandidates) > 0 {
		if err := s.Dedupe.RecordCandidates(design.ID, preCandidates); err != nil {
			return Result{}, apperr.Wrap(apperr.KindPermanent, "record dedupe candidates", err)
		}
		for _, c := range preCandidates {
			s.publish(ctx, events.EventDuplicateFound, design.ID, map[string]any{
				"candidateId": c.ExistingDesignID,
				"matchType":   c.MatchType,
			})
		}
	}

	if _, err := s.Repo.AddDesignSource(design.ID, channel.ID, message.ID); err != nil {
		return Result{}, apperr.Wrap(apperr.KindPermanent, "link design source", err)
	}

	if item.ExternalID != "" {
		if err := s.Dedupe.ScanExternalID(design.ID, string(channel.ID), item.ExternalID); err != nil {
			return Result{}, apperr.Wrap(apperr.KindPermanent, "scan external id dedupe", err)
		}
	}

	isMulti := multicolor.DetectFromCaptionAndFilenames(item.Caption, filenames)
	status := models.MulticolorNo
	if isMulti {
		status = models.MulticolorYes
	}
	if _, err := s.Repo.SetDesignMulticolor(design.ID, status, models.MulticolorSourceHeuristic); err != nil {
		return Result{}, apperr.Wrap(apperr.KindPermanent, "set multicolor heuristic", err)
	}

	if err := s.applyAutoTags(design.ID, item.Caption, candidateFiles); err != nil {
		return Result{}, err
	}

	s.publish(ctx, events.EventDesignCreated, design.ID, map[string]any{"title": title, "channelId": channel.ID})

	jobID, err := s.maybeEnqueueDownload(ctx, channel, design)
	if err != nil {
		return Result{}, err
	}

	return Result{MessageCreated: created, DesignID: design.ID, DesignCreated: true, JobID: jobID}, nil
}

// findDesignForMessage walks design sources back to the design a message
// already contributed to, if any.
func (s *Service) findDesignForMessage(messageID string) (string, bool) {
	for _, d := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
		for _, src := range s.Repo.ListDesignSources(d.ID) {
			if src.MessageID == messageID {
				return d.ID, true
			}
		}
	}
	return "", false
}

func (s *Service) applyAutoTags(designID, caption string, candidateFiles []sources.RawFile) error {
	filenames := make([]string, len(candidateFiles))
	for i, f := range candidateFiles {
		filenames[i] = f.Filename
	}
	for _, cand := range tagging.ExtractAutoTags(caption, filenames) {
		tag, err := s.Repo.EnsureTag(cand.Name, "")
		if err != nil {
			return apperr.Wrap(apperr.KindPermanent, "ensure tag", err)
		}
		if err := s.Repo.TagDesign(designID, tag.ID, cand.Source); err != nil {
			return apperr.Wrap(apperr.KindPermanent, "tag design", err)
		}
	}
	return nil
}

// maybeEnqueueDownload enqueues a DOWNLOAD_DESIGN job per the channel's
// download mode: MANUAL does nothing, DOWNLOAD_ALL_NEW only
// fires for designs created after the mode was enabled, DOWNLOAD_ALL
// always fires.
func (s *Service) maybeEnqueueDownload(ctx context.Context, channel models.Channel, design models.Design) (string, error) {
	if s.Queue == nil {
		return "", nil
	}
	switch channel.DownloadMode {
	case models.DownloadModeManual:
		return "", nil
	case models.DownloadModeAllNew:
		if channel.DownloadModeEnabledAt == nil || design.CreatedAt.Before(*channel.DownloadModeEnabledAt) {
			return "", nil
		}
	case models.DownloadModeAll:
		// unconditional
	default:
		return "", nil
	}

	job, err := s.Queue.Enqueue(ctx, queue.EnqueueParams{
		Kind:        models.JobDownloadDesign,
		Priority:    models.DefaultAutoQueuePriority,
		DesignID:    &design.ID,
		ChannelID:   &channel.ID,
		DisplayName: "Download " + design.EffectiveTitle(),
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindPermanent, "enqueue download job", err)
	}
	s.publish(ctx, events.EventJobCreated, job.ID, map[string]any{"kind": job.Kind, "designId": design.ID})
	return job.ID, nil
}

// EnqueueBulkDownloadAll enqueues DOWNLOAD_DESIGN for every non-terminal
// design already sourced from channel, the one-shot bulk enqueue triggered
// when DOWNLOAD_ALL is first selected.
func (s *Service) EnqueueBulkDownloadAll(ctx context.Context, channel models.Channel) (int, error) {
	if s.Queue == nil {
		return 0, nil
	}
	count := 0
	for _, d := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
		if d.Status == models.DesignDeleted || d.Status == models.DesignOrganized {
			continue
		}
		belongs := false
		for _, src := range s.Repo.ListDesignSources(d.ID) {
			if src.ChannelID == channel.ID {
				belongs = true
				break
			}
		}
		if !belongs {
			continue
		}
		if _, err := s.maybeEnqueueDownload(ctx, channel, d); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Service) publish(ctx context.Context, t events.EventType, entityID string, data any) {
	if s.Events == nil {
		return
	}
	_ = s.Events.Publish(ctx, events.Event{Type: t, EntityID: entityID, Data: data, OccurredAt: time.Now().UTC()})
}

func mediaKind(f sources.RawFile) string {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	if models.CandidateDesignExtensions[ext] {
		return "document"
	}
	return "other"
}

// captionIndicatesDesign is a light heuristic for messages that carry no
// candidate file extension but are still clearly advertising a design
// (e.g. a title hint supplied directly by a structured adapter, or a
// caption with a recognisable hashtag).
func captionIndicatesDesign(caption, titleHint string) bool {
	if strings.TrimSpace(titleHint) != "" {
		return true
	}
	return len(tagging.ExtractFromCaption(caption)) > 0
}

func resolveTitle(item sources.RawItem) string {
	if t := strings.TrimSpace(item.TitleHint); t != "" {
		return t
	}
	caption := strings.TrimSpace(item.Caption)
	if caption == "" {
		return "Untitled"
	}
	if idx := strings.IndexAny(caption, "\n#"); idx > 0 {
		caption = strings.TrimSpace(caption[:idx])
	}
	if caption == "" {
		return "Untitled"
	}
	return caption
}

func resolveDesigner(item sources.RawItem) string {
	if d := strings.TrimSpace(item.DesignerHint); d != "" {
		return d
	}
	if a := strings.TrimSpace(item.Author); a != "" {
		return a
	}
	return "Unknown"
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
