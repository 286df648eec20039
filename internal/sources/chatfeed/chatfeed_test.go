package chatfeed

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/sources"
)

// fakeClient serves a fixed oldest-first history and honours the
// afterUpstreamID pagination contract.
type fakeClient struct {
	history []ChatMessage
}

func (f *fakeClient) GetMessages(ctx context.Context, channelUpstreamID, afterUpstreamID string, limit int) ([]ChatMessage, error) {
	start := 0
	if afterUpstreamID != "" {
		for i, m := range f.history {
			if m.UpstreamID == afterUpstreamID {
				start = i + 1
				break
			}
		}
	}
	out := f.history[start:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func historyOf(n int) []ChatMessage {
	msgs := make([]ChatMessage, 0, n)
	base := time.Now().UTC().Add(-time.Duration(n) * time.Hour)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, ChatMessage{
			UpstreamID: fmt.Sprintf("%d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Caption:    fmt.Sprintf("message %d", i),
		})
	}
	return msgs
}

func TestScanFirstCallAppliesLastNMessagesBackfill(t *testing.T) {
	client := &fakeClient{history: historyOf(5)}
	adapter := New(client, "chan-1", models.BackfillLastNMessages, 2)

	result, err := adapter.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected backfill truncated to 2 messages, got %d", len(result.Items))
	}
	if result.Items[0].UpstreamID != "4" || result.Items[1].UpstreamID != "5" {
		t.Fatalf("expected the newest 2 messages, got %+v", result.Items)
	}
	if result.NextCursor != "5" {
		t.Fatalf("expected cursor at highest upstream id, got %q", result.NextCursor)
	}
}

func TestScanResumesFromCursor(t *testing.T) {
	client := &fakeClient{history: historyOf(4)}
	adapter := New(client, "chan-1", models.BackfillAllHistory, 0)

	first, err := adapter.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(first.Items) != 4 || first.NextCursor != "4" {
		t.Fatalf("unexpected first page %+v", first)
	}

	second, err := adapter.Scan(context.Background(), first.NextCursor)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(second.Items) != 0 {
		t.Fatalf("expected no new messages past the cursor, got %d", len(second.Items))
	}
	if second.NextCursor != "4" {
		t.Fatalf("expected cursor unchanged when nothing is new, got %q", second.NextCursor)
	}
}

func TestScanFirstCallAppliesLastNDaysBackfill(t *testing.T) {
	old := ChatMessage{UpstreamID: "1", Timestamp: time.Now().UTC().AddDate(0, 0, -10)}
	recent := ChatMessage{UpstreamID: "2", Timestamp: time.Now().UTC().Add(-time.Hour)}
	client := &fakeClient{history: []ChatMessage{old, recent}}
	adapter := New(client, "chan-1", models.BackfillLastNDays, 3)

	result, err := adapter.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].UpstreamID != "2" {
		t.Fatalf("expected only the recent message, got %+v", result.Items)
	}
}

type fakeFetcher struct {
	gotMessageID string
	gotFilename  string
}

func (f *fakeFetcher) FetchFile(ctx context.Context, upstreamMessageID, filename string) (sources.FetchedFile, error) {
	f.gotMessageID = upstreamMessageID
	f.gotFilename = filename
	return sources.FetchedFile{Reader: io.NopCloser(strings.NewReader("media")), Size: 5}, nil
}

func TestWithFetcherDelegatesFetchBytes(t *testing.T) {
	adapter := New(&fakeClient{}, "chan-1", models.BackfillAllHistory, 0)
	fetcher := &fakeFetcher{}
	full := adapter.WithFetcher(fetcher)

	fetched, err := full.FetchBytes(context.Background(), sources.RawItem{UpstreamID: "42"}, sources.RawFile{Filename: "dragon.zip"})
	if err != nil {
		t.Fatalf("FetchBytes error: %v", err)
	}
	fetched.Reader.Close()
	if fetcher.gotMessageID != "42" || fetcher.gotFilename != "dragon.zip" {
		t.Fatalf("expected fetcher to receive message id and filename, got %q %q", fetcher.gotMessageID, fetcher.gotFilename)
	}
}
