package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

// ChannelUpdate describes the mutable fields of a Channel; nil fields are
// left untouched.
type ChannelUpdate struct {
	Title         *string
	Enabled       *bool
	BackfillMode  *models.ChannelBackfillMode
	BackfillValue *int
	DownloadMode  *models.ChannelDownloadMode
	SyncCursor    *string
}

// CreateChannel registers a new ingestion channel.
func (s *Store) CreateChannel(upstreamID *string, title string, virtual bool) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	title = strings.TrimSpace(title)
	if title == "" {
		return models.Channel{}, apperr.Validationf("title is required")
	}

	now := time.Now().UTC()
	channel := models.Channel{
		ID:           newID(),
		UpstreamID:   upstreamID,
		Title:        title,
		Enabled:      true,
		IsVirtual:    virtual,
		BackfillMode: models.BackfillAllHistory,
		DownloadMode: models.DownloadModeManual,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.data.Channels[channel.ID] = channel
	if err := s.persist(); err != nil {
		delete(s.data.Channels, channel.ID)
		return models.Channel{}, err
	}
	return channel, nil
}

// GetChannel returns the channel with the given ID.
func (s *Store) GetChannel(id string) (models.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.data.Channels[id]
	return ch, ok
}

// ListChannels returns every channel sorted by title.
func (s *Store) ListChannels() []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Channel, 0, len(s.data.Channels))
	for _, ch := range s.data.Channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

// UpdateChannel applies a partial update to a channel.
//
// Turning DownloadMode on records DownloadModeEnabledAt so the ingest
// service can skip auto-enqueue for the backlog that existed before the
// toggle flipped.
func (s *Store) UpdateChannel(id string, update ChannelUpdate) (models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.data.Channels[id]
	if !ok {
		return models.Channel{}, apperr.NotFoundf("channel %s not found", id)
	}

	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Channel{}, apperr.Validationf("title cannot be empty")
		}
		ch.Title = trimmed
	}
	if update.Enabled != nil {
		ch.Enabled = *update.Enabled
	}
	if update.BackfillMode != nil {
		ch.BackfillMode = *update.BackfillMode
	}
	if update.BackfillValue != nil {
		ch.BackfillValue = *update.BackfillValue
	}
	if update.DownloadMode != nil && *update.DownloadMode != ch.DownloadMode {
		ch.DownloadMode = *update.DownloadMode
		if *update.DownloadMode != models.DownloadModeManual {
			now := time.Now().UTC()
			ch.DownloadModeEnabledAt = &now
		} else {
			ch.DownloadModeEnabledAt = nil
		}
	}
	if update.SyncCursor != nil {
		ch.SyncCursor = *update.SyncCursor
	}
	ch.UpdatedAt = time.Now().UTC()

	previous := s.data.Channels[id]
	s.data.Channels[id] = ch
	if err := s.persist(); err != nil {
		s.data.Channels[id] = previous
		return models.Channel{}, err
	}
	return ch, nil
}

// UpsertDiscoveredChannel records (or refreshes) a channel the ingest bot
// has observed but which is not yet configured for ingestion.
func (s *Store) UpsertDiscoveredChannel(upstreamID, title string, memberCount int) (models.DiscoveredChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, dc := range s.data.DiscoveredChannels {
		if dc.UpstreamID == upstreamID {
			dc.Title = title
			dc.MemberCount = memberCount
			s.data.DiscoveredChannels[id] = dc
			if err := s.persist(); err != nil {
				return models.DiscoveredChannel{}, err
			}
			return dc, nil
		}
	}

	dc := models.DiscoveredChannel{
		ID:          newID(),
		UpstreamID:  upstreamID,
		Title:       title,
		MemberCount: memberCount,
		FirstSeenAt: time.Now().UTC(),
	}
	s.data.DiscoveredChannels[dc.ID] = dc
	if err := s.persist(); err != nil {
		delete(s.data.DiscoveredChannels, dc.ID)
		return models.DiscoveredChannel{}, err
	}
	return dc, nil
}

// ListDiscoveredChannels returns every non-dismissed discovered channel.
func (s *Store) ListDiscoveredChannels() []models.DiscoveredChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DiscoveredChannel, 0)
	for _, dc := range s.data.DiscoveredChannels {
		if !dc.Dismissed {
			out = append(out, dc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return out
}

// DismissDiscoveredChannel marks a discovered channel as handled without
// promoting it to a full Channel.
func (s *Store) DismissDiscoveredChannel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dc, ok := s.data.DiscoveredChannels[id]
	if !ok {
		return apperr.NotFoundf("discovered channel %s not found", id)
	}
	dc.Dismissed = true
	s.data.DiscoveredChannels[id] = dc
	return s.persist()
}

// UpsertMessage inserts or refreshes a Message keyed by (channel, upstream
// id), returning whether it was newly created.
func (s *Store) UpsertMessage(msg models.Message) (models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.data.Messages {
		if existing.ChannelID == msg.ChannelID && existing.UpstreamID == msg.UpstreamID {
			msg.ID = id
			msg.CreatedAt = existing.CreatedAt
			s.data.Messages[id] = msg
			if err := s.persist(); err != nil {
				return models.Message{}, false, err
			}
			return msg, false, nil
		}
	}

	msg.ID = newID()
	msg.CreatedAt = time.Now().UTC()
	s.data.Messages[msg.ID] = msg
	if err := s.persist(); err != nil {
		delete(s.data.Messages, msg.ID)
		return models.Message{}, false, err
	}
	return msg, true, nil
}

// GetMessage returns the message with the given ID.
func (s *Store) GetMessage(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data.Messages[id]
	return m, ok
}

// CreateAttachment records a new attachment under a message.
func (s *Store) CreateAttachment(att models.Attachment) (models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Messages[att.MessageID]; !ok {
		return models.Attachment{}, apperr.NotFoundf("message %s not found", att.MessageID)
	}
	att.ID = newID()
	att.CreatedAt = time.Now().UTC()
	ext := strings.ToLower(att.Extension)
	att.IsCandidateDesign = models.CandidateDesignExtensions[ext]
	s.data.Attachments[att.ID] = att
	if err := s.persist(); err != nil {
		delete(s.data.Attachments, att.ID)
		return models.Attachment{}, err
	}
	return att, nil
}

// UpdateAttachmentDownloadState transitions an attachment's download state,
// recording the local path and hash once downloaded.
func (s *Store) UpdateAttachmentDownloadState(id string, state models.AttachmentDownloadState, localPath, sha256 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.data.Attachments[id]
	if !ok {
		return apperr.NotFoundf("attachment %s not found", id)
	}
	att.DownloadState = state
	if localPath != "" {
		att.LocalPath = localPath
	}
	if sha256 != "" {
		att.SHA256 = sha256
	}
	s.data.Attachments[id] = att
	return s.persist()
}

// ListAttachmentsByMessage returns every attachment belonging to a message.
func (s *Store) ListAttachmentsByMessage(messageID string) []models.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Attachment, 0)
	for _, att := range s.data.Attachments {
		if att.MessageID == messageID {
			out = append(out, att)
		}
	}
	return out
}

// GetAttachment returns the attachment with the given ID.
func (s *Store) GetAttachment(id string) (models.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	att, ok := s.data.Attachments[id]
	return att, ok
}

