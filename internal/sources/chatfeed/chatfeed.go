// Package chatfeed adapts a chat-platform message history into the
// uniform source-adapter interface.
//
// The two-phase scan/ingest split falls out of the
// package boundary rather than needing explicit code here: Scan talks only
// to Client (external I/O) and returns a fully materialised batch; nothing
// in this package touches the catalog store, so the Ingest Service's
// second phase (handing items to the database one at a time) can never
// interleave with this adapter's own async I/O.
package chatfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/sources"
)

// ChatMessage is one message as the upstream chat client reports it.
type ChatMessage struct {
	UpstreamID string
	Timestamp  time.Time
	Author     string
	Caption    string
	Files      []sources.RawFile
	Previews   []sources.RawPreview
}

// Client is the upstream chat-platform dependency this adapter drives.
// Implementations wrap the real chat protocol client, an external
// collaborator; a fake satisfying this interface is enough to test the
// adapter end-to-end.
type Client interface {
	// GetMessages returns messages newer than afterUpstreamID (empty means
	// "from the beginning"), oldest first, capped at limit.
	GetMessages(ctx context.Context, channelUpstreamID, afterUpstreamID string, limit int) ([]ChatMessage, error)
}

// BatchSize bounds how many messages a single Scan call pulls into memory
// before handing the page back.
const BatchSize = 200

// Adapter drives one chat-feed channel.
type Adapter struct {
	Client            Client
	ChannelUpstreamID string
	BackfillMode      models.ChannelBackfillMode
	BackfillValue     int
}

// New builds a chat-feed Adapter bound to one channel.
func New(client Client, channelUpstreamID string, mode models.ChannelBackfillMode, value int) *Adapter {
	return &Adapter{Client: client, ChannelUpstreamID: channelUpstreamID, BackfillMode: mode, BackfillValue: value}
}

// Scan pulls up to BatchSize messages newer than cursor. cursor is the
// highest upstream message id processed so far; an empty cursor means
// "apply the channel's backfill mode" for the very first scan.
func (a *Adapter) Scan(ctx context.Context, cursor string) (sources.ScanResult, error) {
	after := cursor
	msgs, err := a.Client.GetMessages(ctx, a.ChannelUpstreamID, after, BatchSize)
	if err != nil {
		return sources.ScanResult{}, fmt.Errorf("chatfeed: get messages for channel %s: %w", a.ChannelUpstreamID, err)
	}

	if cursor == "" {
		msgs = a.applyBackfillLimit(msgs)
	}

	items := make([]sources.RawItem, 0, len(msgs))
	next := cursor
	for _, m := range msgs {
		items = append(items, sources.RawItem{
			UpstreamID: m.UpstreamID,
			Caption:    m.Caption,
			Timestamp:  m.Timestamp,
			Author:     m.Author,
			Files:      m.Files,
			Previews:   m.Previews,
		})
		next = m.UpstreamID // highest upstream id wins; GetMessages returns oldest-first
	}
	return sources.ScanResult{Items: items, NextCursor: next}, nil
}

// applyBackfillLimit truncates the first-scan batch according to the
// channel's configured backfill mode.
func (a *Adapter) applyBackfillLimit(msgs []ChatMessage) []ChatMessage {
	switch a.BackfillMode {
	case models.BackfillLastNMessages:
		if a.BackfillValue > 0 && len(msgs) > a.BackfillValue {
			return msgs[len(msgs)-a.BackfillValue:]
		}
		return msgs
	case models.BackfillLastNDays:
		if a.BackfillValue <= 0 {
			return msgs
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -a.BackfillValue)
		out := msgs[:0]
		for _, m := range msgs {
			if !m.Timestamp.Before(cutoff) {
				out = append(out, m)
			}
		}
		return out
	default: // BackfillAllHistory
		return msgs
	}
}

// FetchBytes is not implemented directly by the chat-feed adapter: file
// bytes for a chat attachment are fetched through the same upstream
// client, but the generic Client interface above only models history
// pagination. A concrete deployment composes a richer client that also
// satisfies sources.Adapter's FetchBytes by downloading the referenced
// media object; this adapter delegates to it via FileFetcher.
type FileFetcher interface {
	FetchFile(ctx context.Context, upstreamMessageID, filename string) (sources.FetchedFile, error)
}

// WithFetcher returns a sources.Adapter that pairs a's Scan with fetcher's
// FetchBytes implementation.
func (a *Adapter) WithFetcher(fetcher FileFetcher) sources.Adapter {
	return &fetchingAdapter{Adapter: a, fetcher: fetcher}
}

type fetchingAdapter struct {
	*Adapter
	fetcher FileFetcher
}

func (f *fetchingAdapter) FetchBytes(ctx context.Context, item sources.RawItem, file sources.RawFile) (sources.FetchedFile, error) {
	return f.fetcher.FetchFile(ctx, item.UpstreamID, file.Filename)
}
