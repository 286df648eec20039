package forum

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/sources"
)

var (
	testPassphrase = []byte("operator-passphrase")
	testSalt       = []byte("printarr-forum-salt")
)

func TestSealOpenRoundTrip(t *testing.T) {
	sealed, err := Seal(testPassphrase, testSalt, "session=abc123")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	value, err := Open(testPassphrase, testSalt, sealed)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if value != "session=abc123" {
		t.Fatalf("round-trip mismatch: %q", value)
	}
}

func TestOpenRejectsWrongPassphrase(t *testing.T) {
	sealed, err := Seal(testPassphrase, testSalt, "session=abc123")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if _, err := Open([]byte("wrong"), testSalt, sealed); err == nil {
		t.Fatal("expected decryption failure with the wrong passphrase")
	}
}

// memoryJar keeps the sealed cookie in memory.
type memoryJar struct {
	cookie EncryptedCookie
	loaded bool
	saves  int
}

func (m *memoryJar) Load(ctx context.Context) (EncryptedCookie, bool, error) {
	return m.cookie, m.loaded, nil
}

func (m *memoryJar) Save(ctx context.Context, cookie EncryptedCookie) error {
	m.cookie = cookie
	m.loaded = true
	m.saves++
	return nil
}

type staticCreds struct {
	value  string
	logins int
}

func (s *staticCreds) Login(ctx context.Context, client *http.Client) (string, error) {
	s.logins++
	return s.value, nil
}

// cookieAwareScraper rejects stale cookies with the unauthorized sentinel
// and serves one topic to fresh ones.
type cookieAwareScraper struct {
	fresh string
	base  string
}

func (s *cookieAwareScraper) ListTopics(ctx context.Context, client *http.Client, cookie, afterTopicID string) ([]Topic, error) {
	if cookie != s.fresh {
		return nil, errUnauthorized
	}
	if afterTopicID == "42" {
		return nil, nil
	}
	return []Topic{{
		ID:       "42",
		Title:    "Dragon Bust",
		PostedAt: time.Now().UTC(),
		Attachments: []sources.RawFile{
			{Filename: "dragon.zip", SizeBytes: 100, IsCandidateModel: true},
		},
	}}, nil
}

func (s *cookieAwareScraper) AttachmentURL(topicID, filename string) string {
	return s.base + "/download/" + topicID + "/" + filename
}

func TestScanRelogsInOnExpiredCookie(t *testing.T) {
	jar := &memoryJar{}
	stale, err := Seal(testPassphrase, testSalt, "stale")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	jar.cookie, jar.loaded = stale, true

	creds := &staticCreds{value: "fresh"}
	scraper := &cookieAwareScraper{fresh: "fresh"}
	adapter := New(jar, creds, scraper, testPassphrase, testSalt)

	result, err := adapter.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].TitleHint != "Dragon Bust" {
		t.Fatalf("expected one topic after re-login, got %+v", result.Items)
	}
	if creds.logins != 1 {
		t.Fatalf("expected exactly one re-login, got %d", creds.logins)
	}
	if jar.saves != 1 {
		t.Fatalf("expected the fresh cookie to be re-sealed and saved, got %d saves", jar.saves)
	}
	if result.NextCursor != "42" {
		t.Fatalf("expected cursor at the last topic id, got %q", result.NextCursor)
	}
}

func TestFetchBytesRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "archive-bytes")
	}))
	defer server.Close()

	jar := &memoryJar{}
	sealed, err := Seal(testPassphrase, testSalt, "fresh")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	jar.cookie, jar.loaded = sealed, true

	scraper := &cookieAwareScraper{fresh: "fresh", base: server.URL}
	adapter := New(jar, &staticCreds{value: "fresh"}, scraper, testPassphrase, testSalt)
	adapter.RetryInterval = time.Millisecond

	fetched, err := adapter.FetchBytes(context.Background(), sources.RawItem{UpstreamID: "42"}, sources.RawFile{Filename: "dragon.zip"})
	if err != nil {
		t.Fatalf("FetchBytes error: %v", err)
	}
	defer fetched.Reader.Close()
	body, err := io.ReadAll(fetched.Reader)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "archive-bytes" {
		t.Fatalf("unexpected body %q", body)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected a retry after the 502, got %d hits", hits.Load())
	}
}

func TestFetchBytesDoesNotRetryClientError(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	jar := &memoryJar{}
	sealed, err := Seal(testPassphrase, testSalt, "fresh")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	jar.cookie, jar.loaded = sealed, true

	scraper := &cookieAwareScraper{fresh: "fresh", base: server.URL}
	adapter := New(jar, &staticCreds{value: "fresh"}, scraper, testPassphrase, testSalt)
	adapter.RetryInterval = time.Millisecond

	if _, err := adapter.FetchBytes(context.Background(), sources.RawItem{UpstreamID: "42"}, sources.RawFile{Filename: "missing.zip"}); err == nil {
		t.Fatal("expected a non-retryable failure for a 404")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry on a 404, got %d hits", hits.Load())
	}
}
