package clouddrive

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/sources"
)

func TestParseFolderID(t *testing.T) {
	cases := map[string]struct {
		id string
		ok bool
	}{
		"https://drive.example.com/drive/folders/1AbCdEfGhIjKlMnOp":  {"1AbCdEfGhIjKlMnOp", true},
		"https://drive.example.com/folder/9ZyXwVuTsRqPoNmL?usp=share": {"9ZyXwVuTsRqPoNmL", true},
		"https://drive.example.com/home":                              {"", false},
	}
	for url, want := range cases {
		id, ok := ParseFolderID(url)
		if ok != want.ok || id != want.id {
			t.Errorf("ParseFolderID(%q) = (%q, %v), want (%q, %v)", url, id, ok, want.id, want.ok)
		}
	}
}

func TestParseFileID(t *testing.T) {
	id, ok := ParseFileID("https://drive.example.com/file/d/1AbCdEfGhIjKlMnOp/view")
	if !ok || id != "1AbCdEfGhIjKlMnOp" {
		t.Fatalf("ParseFileID /d/ form = (%q, %v)", id, ok)
	}
	id, ok = ParseFileID("https://drive.example.com/open?id=9ZyXwVuTsRqPoNmL")
	if !ok || id != "9ZyXwVuTsRqPoNmL" {
		t.Fatalf("ParseFileID id= form = (%q, %v)", id, ok)
	}
	if _, ok := ParseFileID("https://drive.example.com/home"); ok {
		t.Fatal("expected no file id in a plain URL")
	}
}

func TestTokenNeedsRefreshWithinSafetyMargin(t *testing.T) {
	now := time.Now().UTC()
	fresh := Token{AccessToken: "t", ExpiresAt: now.Add(time.Hour)}
	if fresh.NeedsRefresh(now) {
		t.Fatal("token expiring in an hour should not need refresh")
	}
	nearExpiry := Token{AccessToken: "t", ExpiresAt: now.Add(time.Minute)}
	if !nearExpiry.NeedsRefresh(now) {
		t.Fatal("token inside the safety margin should refresh")
	}
	empty := Token{}
	if !empty.NeedsRefresh(now) {
		t.Fatal("empty token should always refresh")
	}
}

type fakeRefresher struct {
	calls atomic.Int64
}

func (f *fakeRefresher) Refresh(ctx context.Context) (Token, error) {
	f.calls.Add(1)
	return Token{AccessToken: "fresh", ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
}

// fakeDrive serves a two-level tree: root holds one file and one subfolder,
// the subfolder holds one file.
type fakeDrive struct{}

func (fakeDrive) ListFolder(ctx context.Context, token, folderID string) ([]DriveEntry, error) {
	switch folderID {
	case "root":
		return []DriveEntry{
			{ID: "file-a", Name: "a.stl", SizeBytes: 10},
			{ID: "sub", Name: "Sub Design", IsFolder: true},
		}, nil
	case "sub":
		return []DriveEntry{{ID: "file-b", Name: "b.stl", SizeBytes: 20}}, nil
	default:
		return nil, nil
	}
}

func (fakeDrive) Download(ctx context.Context, token, fileID string) (sources.FetchedFile, error) {
	return sources.FetchedFile{Reader: io.NopCloser(strings.NewReader("bytes")), Size: 5}, nil
}

func TestScanWalksFolderTree(t *testing.T) {
	refresher := &fakeRefresher{}
	adapter := New(fakeDrive{}, refresher, "root", 0)

	result, err := adapter.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected one item per folder holding files, got %d", len(result.Items))
	}
	byID := map[string][]sources.RawFile{}
	for _, item := range result.Items {
		byID[item.UpstreamID] = item.Files
	}
	if len(byID["root"]) != 1 || byID["root"][0].Filename != "a.stl" {
		t.Fatalf("unexpected root files %+v", byID["root"])
	}
	if len(byID["sub"]) != 1 || byID["sub"][0].Filename != "b.stl" {
		t.Fatalf("unexpected sub files %+v", byID["sub"])
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Fatalf("expected a single opportunistic token refresh, got %d", got)
	}
}

func TestScanRespectsMaxDepth(t *testing.T) {
	adapter := New(fakeDrive{}, &fakeRefresher{}, "root", 0)
	adapter.MaxDepth = 0 // root only

	result, err := adapter.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	for _, item := range result.Items {
		if item.UpstreamID == "sub" {
			t.Fatal("expected the subfolder beyond MaxDepth to be skipped")
		}
	}
}
