// Package localfolder adapts a local filesystem tree into the uniform
// source-adapter interface. Unlike the
// cursor-based remote adapters, it always re-walks the configured tree;
// idempotence comes from the catalog's ImportRecord uniqueness on
// (folder, source_path) rather than from a cursor.
package localfolder

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/sources"
)

// Adapter walks one ImportSourceFolder according to its ImportProfile's
// detection rules.
type Adapter struct {
	Folder  models.ImportSourceFolder
	Profile models.ImportProfile
}

// New builds a localfolder Adapter.
func New(folder models.ImportSourceFolder, profile models.ImportProfile) *Adapter {
	return &Adapter{Folder: folder, Profile: profile}
}

// Scan walks Folder.Path and returns one RawItem per detected design
// folder. cursor is ignored: every call re-walks the full tree, and the
// Ingest Service relies on ImportRecord's (folder, source_path) uniqueness
// to skip paths it has already processed.
func (a *Adapter) Scan(ctx context.Context, cursor string) (sources.ScanResult, error) {
	roots, err := a.designRoots()
	if err != nil {
		return sources.ScanResult{}, err
	}

	items := make([]sources.RawItem, 0, len(roots))
	for _, root := range roots {
		select {
		case <-ctx.Done():
			return sources.ScanResult{}, ctx.Err()
		default:
		}
		item, ok := a.buildItem(root)
		if ok {
			items = append(items, item)
		}
	}
	return sources.ScanResult{Items: items, NextCursor: ""}, nil
}

// designRoots returns every folder under Folder.Path recognised as a
// design folder, per the profile's detection rules.
func (a *Adapter) designRoots() ([]string, error) {
	det := a.Profile.Detection
	var roots []string

	switch det.Structure {
	case models.StructureFlat:
		roots = append(roots, a.Folder.Path)
	case models.StructureNested:
		entries, err := os.ReadDir(a.Folder.Path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() && !a.isIgnoredFolder(e.Name()) {
				roots = append(roots, filepath.Join(a.Folder.Path, e.Name()))
			}
		}
	default: // StructureAuto
		if det.DesignDepth != nil {
			roots = a.rootsAtDepth(a.Folder.Path, *det.DesignDepth)
		} else {
			roots = a.autoDetectRoots(a.Folder.Path, 0)
		}
	}

	sort.Strings(roots)
	return roots, nil
}

// rootsAtDepth collects every directory exactly depth levels below start.
func (a *Adapter) rootsAtDepth(start string, depth int) []string {
	if depth <= 0 {
		return []string{start}
	}
	entries, err := os.ReadDir(start)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || a.isIgnoredFolder(e.Name()) {
			continue
		}
		out = append(out, a.rootsAtDepth(filepath.Join(start, e.Name()), depth-1)...)
	}
	return out
}

// autoDetectRoots descends the tree, treating a folder as a design root as
// soon as it contains enough candidate model files to satisfy
// MinModelFileCount, and otherwise recursing into its subfolders.
func (a *Adapter) autoDetectRoots(dir string, depth int) []string {
	if depth > 6 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	modelCount := 0
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			if !a.isIgnoredFolder(e.Name()) {
				subdirs = append(subdirs, e.Name())
			}
			continue
		}
		if a.isModelOrArchive(e.Name()) {
			modelCount++
		}
	}

	min := det(a.Profile).MinModelFileCount
	if min <= 0 {
		min = 1
	}
	if modelCount >= min {
		return []string{dir}
	}

	var out []string
	for _, sub := range subdirs {
		out = append(out, a.autoDetectRoots(filepath.Join(dir, sub), depth+1)...)
	}
	return out
}

func det(p models.ImportProfile) models.ImportProfileDetection { return p.Detection }

func (a *Adapter) isModelOrArchive(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range a.Profile.Detection.ModelExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	for _, e := range a.Profile.Detection.ArchiveExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (a *Adapter) isIgnoredFolder(name string) bool {
	for _, ig := range a.Profile.Ignore.Folders {
		if strings.EqualFold(ig, name) {
			return true
		}
	}
	return false
}

func (a *Adapter) isIgnoredFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, ig := range a.Profile.Ignore.Extensions {
		if strings.EqualFold(ig, ext) {
			return true
		}
	}
	for _, pattern := range a.Profile.Ignore.FilenamePatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (a *Adapter) isPreviewFile(dir, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	matchesExt := len(a.Profile.Preview.ImageExtensions) == 0
	for _, e := range a.Profile.Preview.ImageExtensions {
		if strings.EqualFold(e, ext) {
			matchesExt = true
			break
		}
	}
	if !matchesExt {
		return false
	}
	base := filepath.Base(dir)
	for _, folder := range a.Profile.Preview.FolderNames {
		if strings.EqualFold(folder, base) {
			return true
		}
	}
	for _, pattern := range a.Profile.Preview.WildcardPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// buildItem walks one design root recursively and gathers its model/archive
// files and preview images into a RawItem.
func (a *Adapter) buildItem(root string) (sources.RawItem, bool) {
	var files []sources.RawFile
	var previews []sources.RawPreview

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if a.isIgnoredFile(name) {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if a.isPreviewFile(filepath.Dir(path), name) {
			previews = append(previews, sources.RawPreview{Filename: name, URL: path})
			return nil
		}
		if a.isModelOrArchive(name) {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = name
			}
			files = append(files, sources.RawFile{
				Filename:         rel,
				SizeBytes:        info.Size(),
				IsCandidateModel: true,
			})
		}
		return nil
	})

	if len(files) == 0 {
		return sources.RawItem{}, false
	}

	return sources.RawItem{
		UpstreamID: root,
		TitleHint:  a.titleFor(root),
		Timestamp:  time.Now().UTC(),
		Files:      files,
		Previews:   previews,
		FolderPath: root,
	}, true
}

// titleFor derives a title from the design root path per the profile's
// title-source rule.
func (a *Adapter) titleFor(root string) string {
	var raw string
	switch a.Profile.Title.Source {
	case models.TitleSourceParentFolder:
		raw = filepath.Base(filepath.Dir(root))
	case models.TitleSourceFilename:
		raw = filepath.Base(root)
	default: // TitleSourceFolderName
		raw = filepath.Base(root)
	}

	for _, pattern := range a.Profile.Title.StripPatterns {
		raw = strings.ReplaceAll(raw, pattern, "")
	}
	raw = strings.TrimSpace(raw)

	switch a.Profile.Title.CaseTransform {
	case models.CaseTransformLower:
		return strings.ToLower(raw)
	case models.CaseTransformUpper:
		return strings.ToUpper(raw)
	case models.CaseTransformTitle:
		return strings.Title(raw) //nolint:staticcheck // profile-driven display formatting, not locale text
	default:
		return raw
	}
}

// FetchBytes opens the file directly off disk; local-folder items are
// already on the local filesystem so no network fetch is needed.
// file.Filename is the path of the file relative to item.FolderPath, as
// set by buildItem's walk.
func (a *Adapter) FetchBytes(ctx context.Context, item sources.RawItem, file sources.RawFile) (sources.FetchedFile, error) {
	path := filepath.Join(item.FolderPath, file.Filename)
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
