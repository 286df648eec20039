// Package sources defines the uniform adapter interface consumed by the
// ingest service: scan an upstream location for raw items and fetch an
// item's file bytes. Concrete drivers live in subpackages
// (chatfeed, clouddrive, forum, localfolder, upload); each selects its
// adapter once at construction time and is dispatched through this
// interface thereafter.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// RawFile is one file descriptor attached to a RawItem.
type RawFile struct {
	Filename         string
	SizeBytes        int64
	MIME             string
	IsCandidateModel bool
}

// RawPreview is an optional preview image descriptor attached to a RawItem.
type RawPreview struct {
	Filename string
	URL      string
}

// RawItem is the uniform in-flight representation every adapter produces,
// ready for the Ingest Service to normalise into catalog rows.
type RawItem struct {
	UpstreamID   string
	TitleHint    string
	DesignerHint string
	Caption      string
	Timestamp    time.Time
	Author       string
	Files        []RawFile
	Previews     []RawPreview
	FolderPath   string // set by structured sources (cloud-drive, local-folder)
	ExternalID   string // set when the upstream exposes a stable external identifier
}

// ScanResult is one page of a Scan call: the items found plus the cursor to
// resume from next time.
type ScanResult struct {
	Items      []RawItem
	NextCursor string
}

// FetchedFile is the byte stream and metadata for one RawFile's content.
type FetchedFile struct {
	Reader io.ReadCloser
	Size   int64
	MTime  time.Time
}

// Adapter is the capability every source driver implements.
// Implementations select their concrete type once at construction and are
// referenced only through this interface afterward.
type Adapter interface {
	// Scan pulls the next page of raw items starting from cursor (empty for
	// the first call) and returns the page plus the cursor to resume from.
	Scan(ctx context.Context, cursor string) (ScanResult, error)

	// FetchBytes opens the content of one file belonging to item.
	FetchBytes(ctx context.Context, item RawItem, file RawFile) (FetchedFile, error)
}

// FanoutAdapter composes several folder-scoped Adapters (an import source
// may hold more than one upstream folder) behind the single Adapter a
// virtual channel resolves to. Each child is constructed once and keyed by
// an opaque id that owns its entry in the combined cursor; FetchBytes does
// not use the keys and tries the children in order instead.
type FanoutAdapter struct {
	children []fanoutChild
}

type fanoutChild struct {
	key     string
	adapter Adapter
}

// NewFanoutAdapter builds a FanoutAdapter over children, keyed in the same
// order they are provided. key is an opaque identifier (e.g. a folder id)
// used only to split a combined cursor back into per-child cursors.
func NewFanoutAdapter(keys []string, children []Adapter) *FanoutAdapter {
	f := &FanoutAdapter{children: make([]fanoutChild, 0, len(children))}
	for i, child := range children {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		f.children = append(f.children, fanoutChild{key: key, adapter: child})
	}
	return f
}

// fanoutCursor is the JSON-encoded per-child cursor map persisted as this
// adapter's combined cursor string.
type fanoutCursor map[string]string

// Scan runs every child's Scan and concatenates their items. Cursor
// resumption is child-local: localfolder and upload children ignore their
// cursor entirely, so in practice this degrades to a full re-scan of
// every child on every call, same as scanning them directly.
func (f *FanoutAdapter) Scan(ctx context.Context, cursor string) (ScanResult, error) {
	cursors := decodeFanoutCursor(cursor)
	var items []RawItem
	next := make(fanoutCursor, len(f.children))
	for _, c := range f.children {
		page, err := c.adapter.Scan(ctx, cursors[c.key])
		if err != nil {
			return ScanResult{}, err
		}
		items = append(items, page.Items...)
		next[c.key] = page.NextCursor
	}
	return ScanResult{Items: items, NextCursor: encodeFanoutCursor(next)}, nil
}

// FetchBytes dispatches to whichever child adapter can open item/file.
// Children report ErrNotFound-shaped failures for items they don't
// recognise, so the first child that succeeds wins; folder-scoped children
// never share FolderPath/UpstreamID values, so at most one ever matches.
func (f *FanoutAdapter) FetchBytes(ctx context.Context, item RawItem, file RawFile) (FetchedFile, error) {
	var lastErr error
	for _, c := range f.children {
		fetched, err := c.adapter.FetchBytes(ctx, item, file)
		if err == nil {
			return fetched, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errNoFanoutChildren
	}
	return FetchedFile{}, lastErr
}

var errNoFanoutChildren = fmt.Errorf("fanout adapter has no children able to fetch the requested file")

func decodeFanoutCursor(cursor string) fanoutCursor {
	out := make(fanoutCursor)
	if cursor == "" {
		return out
	}
	_ = json.Unmarshal([]byte(cursor), &out)
	return out
}

func encodeFanoutCursor(c fanoutCursor) string {
	encoded, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(encoded)
}

var _ Adapter = (*FanoutAdapter)(nil)
