// Package upload adapts direct HTTP-uploaded files into the uniform
// source-adapter interface. The
// adapter itself is passive: the out-of-scope upload HTTP endpoint is
// responsible for placing bytes into staging and inserting the
// ImportRecord; this package only turns already-staged records back into
// RawItems for the Ingest Service and opens their staged bytes.
package upload

import (
	"context"
	"os"
	"path/filepath"

	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/sources"
)

// StagingDir locates staged upload bytes on disk, keyed by ImportRecord id.
type StagingDir struct {
	Root string
}

// PathFor returns the staged file path for record.
func (s StagingDir) PathFor(record models.ImportRecord) string {
	return filepath.Join(s.Root, record.ID, filepath.Base(record.SourcePath))
}

// Adapter turns PENDING upload ImportRecords under folderID into RawItems.
// It never re-scans: records are created once by the upload endpoint, and
// the Ingest Service asks for them by folder the same way it would any
// other import-record-driven source.
type Adapter struct {
	Repo     catalog.Repository
	FolderID string
	Staging  StagingDir
}

// New builds an upload Adapter bound to one ImportSourceFolder.
func New(repo catalog.Repository, folderID string, staging StagingDir) *Adapter {
	return &Adapter{Repo: repo, FolderID: folderID, Staging: staging}
}

// Scan returns one RawItem per PENDING ImportRecord under FolderID. cursor
// is ignored: pending records are naturally exhausted as the Ingest
// Service completes them via CompleteImportRecord, so there is nothing to
// resume from.
func (a *Adapter) Scan(ctx context.Context, cursor string) (sources.ScanResult, error) {
	var items []sources.RawItem
	for _, rec := range a.Repo.ListImportRecords(a.FolderID) {
		if rec.Outcome != models.ImportOutcomePending {
			continue
		}
		path := a.Staging.PathFor(rec)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		items = append(items, sources.RawItem{
			UpstreamID: rec.ID,
			TitleHint:  filepath.Base(rec.SourcePath),
			Timestamp:  rec.CreatedAt,
			Files: []sources.RawFile{{
				Filename:         filepath.Base(rec.SourcePath),
				SizeBytes:        info.Size(),
				IsCandidateModel: true,
			}},
			FolderPath: rec.ID,
		})
	}
	return sources.ScanResult{Items: items, NextCursor: ""}, nil
}

// FetchBytes opens a staged upload's bytes. item.UpstreamID carries the
// ImportRecord id (see Scan).
func (a *Adapter) FetchBytes(ctx context.Context, item sources.RawItem, file sources.RawFile) (sources.FetchedFile, error) {
	path := filepath.Join(a.Staging.Root, item.UpstreamID, file.Filename)
	f, err := os.Open(path)
	if err != nil {
		return sources.FetchedFile{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return sources.FetchedFile{}, err
	}
	return sources.FetchedFile{Reader: f, Size: info.Size(), MTime: info.ModTime()}, nil
}

var _ sources.Adapter = (*Adapter)(nil)
