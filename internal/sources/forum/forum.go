// Package forum adapts a session-cookie-authenticated forum into the
// uniform source-adapter interface: page
// scraping for per-topic attachments, with cookies cached encrypted at
// rest and a re-login on expiry.
package forum

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/AdamA817/printarr-sub001/internal/sources"
)

// Defaults for the adapter's HTTP client timeout and for retrying
// attachment downloads.
const (
	defaultHTTPTimeout  = 15 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 750 * time.Millisecond
)

// pbkdf2Iterations and pbkdf2KeyLen size the key derivation used to encrypt
// the cached session cookie at rest.
const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLen     = 32
)

// CookieJar loads and saves the forum session cookie. Implementations
// persist EncryptedCookie to durable storage (a settings row, a file, a
// database column); this package only encrypts/decrypts the value.
type CookieJar interface {
	Load(ctx context.Context) (EncryptedCookie, bool, error)
	Save(ctx context.Context, cookie EncryptedCookie) error
}

// EncryptedCookie is a session cookie sealed with AES-GCM under a
// passphrase-derived key.
type EncryptedCookie struct {
	Nonce      []byte
	Ciphertext []byte
}

// Seal encrypts cookieValue under a key derived from passphrase via
// PBKDF2-SHA256.
func Seal(passphrase, salt []byte, cookieValue string) (EncryptedCookie, error) {
	key := pbkdf2.Key(passphrase, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedCookie{}, fmt.Errorf("forum: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedCookie{}, fmt.Errorf("forum: build gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedCookie{}, fmt.Errorf("forum: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(cookieValue), nil)
	return EncryptedCookie{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Open decrypts an EncryptedCookie sealed with Seal.
func Open(passphrase, salt []byte, cookie EncryptedCookie) (string, error) {
	key := pbkdf2.Key(passphrase, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("forum: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("forum: build gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, cookie.Nonce, cookie.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("forum: decrypt cookie: %w", err)
	}
	return string(plaintext), nil
}

// Credentials logs into the forum and returns a fresh session cookie value.
type Credentials interface {
	Login(ctx context.Context, client *http.Client) (cookieValue string, err error)
}

// Topic is one forum topic page's scraped content.
type Topic struct {
	ID          string
	Title       string
	Author      string
	PostedAt    time.Time
	Attachments []sources.RawFile
	Previews    []sources.RawPreview
}

// Scraper parses forum HTML into Topic values and lists attachment
// download URLs. Implementations are site-specific; this package does not
// assume any particular forum software.
type Scraper interface {
	// ListTopics returns topics newer than afterTopicID (empty for the
	// first page), oldest first.
	ListTopics(ctx context.Context, client *http.Client, cookie string, afterTopicID string) ([]Topic, error)
	// AttachmentURL resolves the download URL for one topic's attachment.
	AttachmentURL(topicID, filename string) string
}

// Adapter drives one forum section.
type Adapter struct {
	Client      *http.Client
	Jar         CookieJar
	Credentials Credentials
	Scraper     Scraper
	Passphrase  []byte
	Salt        []byte
	Logger      *slog.Logger

	MaxAttempts   int
	RetryInterval time.Duration
}

// New builds a forum Adapter.
func New(jar CookieJar, creds Credentials, scraper Scraper, passphrase, salt []byte) *Adapter {
	return &Adapter{
		Client:        &http.Client{Timeout: defaultHTTPTimeout},
		Jar:           jar,
		Credentials:   creds,
		Scraper:       scraper,
		Passphrase:    passphrase,
		Salt:          salt,
		MaxAttempts:   defaultMaxAttempts,
		RetryInterval: defaultRetryBackoff,
	}
}

// sessionCookie loads the cached cookie, decrypting it, or logs in fresh
// when none is cached.
func (a *Adapter) sessionCookie(ctx context.Context) (string, error) {
	if cached, ok, err := a.Jar.Load(ctx); err != nil {
		return "", err
	} else if ok {
		value, err := Open(a.Passphrase, a.Salt, cached)
		if err == nil && value != "" {
			return value, nil
		}
	}
	return a.login(ctx)
}

func (a *Adapter) login(ctx context.Context) (string, error) {
	value, err := a.Credentials.Login(ctx, a.Client)
	if err != nil {
		return "", fmt.Errorf("forum: login: %w", err)
	}
	sealed, err := Seal(a.Passphrase, a.Salt, value)
	if err != nil {
		return "", err
	}
	if err := a.Jar.Save(ctx, sealed); err != nil {
		return "", err
	}
	return value, nil
}

// errUnauthorized signals a 401/expired-cookie response so Scan can retry
// once after a fresh login.
var errUnauthorized = errors.New("forum: session expired")

// Scan lists topics newer than cursor (the last topic id processed),
// logging in (or re-logging in once on a 401) as needed.
func (a *Adapter) Scan(ctx context.Context, cursor string) (sources.ScanResult, error) {
	cookie, err := a.sessionCookie(ctx)
	if err != nil {
		return sources.ScanResult{}, err
	}

	topics, err := a.Scraper.ListTopics(ctx, a.Client, cookie, cursor)
	if errors.Is(err, errUnauthorized) {
		cookie, err = a.login(ctx)
		if err != nil {
			return sources.ScanResult{}, err
		}
		topics, err = a.Scraper.ListTopics(ctx, a.Client, cookie, cursor)
	}
	if err != nil {
		return sources.ScanResult{}, fmt.Errorf("forum: list topics: %w", err)
	}

	items := make([]sources.RawItem, 0, len(topics))
	next := cursor
	for _, t := range topics {
		items = append(items, sources.RawItem{
			UpstreamID: t.ID,
			TitleHint:  t.Title,
			Author:     t.Author,
			Timestamp:  t.PostedAt,
			Files:      t.Attachments,
			Previews:   t.Previews,
		})
		next = t.ID
	}
	return sources.ScanResult{Items: items, NextCursor: next}, nil
}

// FetchBytes downloads one topic attachment, retrying per doWithRetry's
// semantics (network errors, 5xx, 429 retried; other 4xx treated as
// permanent).
func (a *Adapter) FetchBytes(ctx context.Context, item sources.RawItem, file sources.RawFile) (sources.FetchedFile, error) {
	cookie, err := a.sessionCookie(ctx)
	if err != nil {
		return sources.FetchedFile{}, err
	}
	url := a.Scraper.AttachmentURL(item.UpstreamID, file.Filename)

	resp, err := a.doWithRetry(ctx, cookie, url)
	if err != nil {
		return sources.FetchedFile{}, err
	}
	return sources.FetchedFile{Reader: resp.Body, Size: resp.ContentLength, MTime: time.Now().UTC()}, nil
}

func (a *Adapter) doWithRetry(ctx context.Context, cookie, url string) (*http.Response, error) {
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("forum: build request: %w", err)
		}
		req.Header.Set("Cookie", cookie)

		resp, err := a.Client.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			return nil, errUnauthorized
		} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		} else if isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("forum: unexpected status %d", resp.StatusCode)
		} else {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("forum: request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if attempt < attempts {
			logger.Warn("forum adapter request failed", "url", url, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.retryInterval()):
			}
		}
	}
	return nil, lastErr
}

func (a *Adapter) retryInterval() time.Duration {
	if a.RetryInterval <= 0 {
		return defaultRetryBackoff
	}
	return a.RetryInterval
}

func isRetryableStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

var _ sources.Adapter = (*Adapter)(nil)
