// Package archive extracts the nested-archive stage of the pipeline:
// zip/rar/7z/tar files sitting in a design's staging directory get expanded
// one level deep, classifying failures the way the retry service expects
// (password-protected, corrupt, and missing-part archives are all
// permanent — never worth retrying).
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
)

// SupportedExtensions are the archive formats the extractor recognises.
var SupportedExtensions = map[string]bool{
	".zip": true, ".rar": true, ".7z": true, ".tar": true,
}

// splitRarPart matches "name.part03.rar"-style split-RAR members.
var splitRarPart = regexp.MustCompile(`(?i)^(.*)\.part(\d+)\.rar$`)

// ProgressFunc reports extraction progress; throttling is the caller's
// concern.
type ProgressFunc func(current, total int)

// Result summarises one ExtractDesignArchives call, mirroring the
// archives_extracted/files_created/nested_archives fields the original
// extract worker returned.
type Result struct {
	ArchivesExtracted int
	FilesCreated      []string // paths of files produced, relative to dir
	NestedArchives    int
}

// Extractor runs archive extraction for one staging directory at a time. It
// holds no state between calls; every design gets a fresh staging
// subdirectory, so there's nothing to share.
type Extractor struct {
	// DeleteAfterExtraction mirrors the delete_archives_after_extraction
	// setting: when true, a successfully extracted archive is removed.
	DeleteAfterExtraction bool
}

// ExtractDesignArchives finds every top-level archive under dir, extracts
// it in place, then extracts archives found inside those results exactly
// once more (one level of nesting) before stopping — a nested archive
// found inside an extracted nested archive is left untouched.
func (e *Extractor) ExtractDesignArchives(dir string, progress ProgressFunc) (Result, error) {
	var result Result

	topLevel, err := topLevelArchives(dir)
	if err != nil {
		return result, apperr.Wrap(apperr.KindPermanent, "list staging archives", err)
	}
	if err := checkSplitRarCompleteness(topLevel); err != nil {
		return result, err
	}

	total := len(topLevel)
	for i, archivePath := range topLevel {
		if progress != nil {
			progress(i, total)
		}
		created, err := e.extractOne(archivePath, filepath.Dir(archivePath))
		if err != nil {
			return result, err
		}
		result.ArchivesExtracted++
		result.FilesCreated = append(result.FilesCreated, relativeTo(dir, created)...)

		for _, extracted := range created {
			ext := strings.ToLower(filepath.Ext(extracted))
			if !SupportedExtensions[ext] {
				continue
			}
			nestedCreated, err := e.extractOne(extracted, filepath.Dir(extracted))
			if err != nil {
				return result, err
			}
			result.NestedArchives++
			result.FilesCreated = append(result.FilesCreated, relativeTo(dir, nestedCreated)...)
		}
	}
	if progress != nil {
		progress(total, total)
	}
	return result, nil
}

// relativeTo rewrites absolute extracted paths relative to the staging dir,
// the form DesignFile.RelativePath stores.
func relativeTo(dir string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		out = append(out, rel)
	}
	return out
}

// topLevelArchives lists archive files directly under dir (not recursing),
// excluding split-RAR continuation parts (.r00, .r01, ... are driven by
// the .rar/.partNN.rar entry point).
func topLevelArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read staging dir %s: %w", dir, err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !SupportedExtensions[ext] {
			continue
		}
		if m := splitRarPart.FindStringSubmatch(name); m != nil {
			if num, _ := strconv.Atoi(m[2]); num != 1 {
				continue // only the first part is an extraction entry point
			}
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// checkSplitRarCompleteness reports a non-retryable MissingPart error when a
// split-RAR sequence has gaps, e.g. part 3 of 5 absent.
func checkSplitRarCompleteness(entryPoints []string) error {
	for _, entry := range entryPoints {
		m := splitRarPart.FindStringSubmatch(filepath.Base(entry))
		if m == nil {
			continue
		}
		base, dir := m[1], filepath.Dir(entry)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return apperr.Wrap(apperr.KindPermanent, "list split-rar parts", err)
		}
		seen := map[int]bool{}
		maxPart := 0
		for _, e := range entries {
			pm := splitRarPart.FindStringSubmatch(e.Name())
			if pm == nil || pm[1] != base {
				continue
			}
			n, _ := strconv.Atoi(pm[2])
			seen[n] = true
			if n > maxPart {
				maxPart = n
			}
		}
		for n := 1; n <= maxPart; n++ {
			if !seen[n] {
				return apperr.New(apperr.KindPermanent, fmt.Sprintf("missing part %d of %d for split archive %s", n, maxPart, base))
			}
		}
	}
	return nil
}

// extractOne dispatches to the format-specific extractor and deletes the
// source archive afterward when DeleteAfterExtraction is set.
func (e *Extractor) extractOne(archivePath, destDir string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(archivePath))
	var (
		created []string
		err     error
	)
	switch ext {
	case ".zip":
		created, err = extractZip(archivePath, destDir)
	case ".tar":
		created, err = extractTar(archivePath, destDir)
	case ".rar":
		created, err = extractViaTool("unrar", []string{"x", "-y", archivePath, destDir + string(os.PathSeparator)}, archivePath, destDir)
	case ".7z":
		created, err = extractViaTool("7z", []string{"x", "-y", "-o" + destDir, archivePath}, archivePath, destDir)
	default:
		return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("unsupported archive format %s", ext))
	}
	if err != nil {
		return nil, err
	}
	if e.DeleteAfterExtraction {
		_ = os.Remove(archivePath)
	}
	return created, nil
}

func extractZip(archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if strings.Contains(err.Error(), "not a valid zip") {
			return nil, apperr.Wrap(apperr.KindPermanent, "corrupt zip archive", err)
		}
		return nil, apperr.Wrap(apperr.KindPermanent, "open zip archive", err)
	}
	defer r.Close()

	var created []string
	for _, f := range r.File {
		if f.Flags&0x1 != 0 {
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("password protected archive %s", archivePath))
		}
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("zip entry escapes destination: %s", f.Name))
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, apperr.Wrap(apperr.KindPermanent, "create directory from archive", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "create parent directory", err)
		}
		if err := copyZipEntry(f, target); err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, fmt.Sprintf("extract entry %s", f.Name), err)
		}
		created = append(created, target)
	}
	return created, nil
}

func copyZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func extractTar(archivePath, destDir string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "open tar archive", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(strings.ToLower(archivePath), ".tar.gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "corrupt gzip stream", err)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	var created []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPermanent, "corrupt tar archive", err)
		}
		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("tar entry escapes destination: %s", hdr.Name))
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, apperr.Wrap(apperr.KindPermanent, "create directory from archive", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, apperr.Wrap(apperr.KindPermanent, "create parent directory", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return nil, apperr.Wrap(apperr.KindPermanent, "create extracted file", err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return nil, apperr.Wrap(apperr.KindPermanent, "write extracted file", err)
			}
			out.Close()
			created = append(created, target)
		}
	}
	return created, nil
}

// extractViaTool shells out to a system archive utility (unrar/7z).
// Output is inspected to classify password-protected, missing-part, and
// corrupt failures.
func extractViaTool(tool string, args []string, archivePath, destDir string) ([]string, error) {
	if _, err := exec.LookPath(tool); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, fmt.Sprintf("%s not installed", tool), err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, "create destination directory", err)
	}
	before := listFiles(destDir)

	cmd := exec.Command(tool, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		lower := strings.ToLower(string(out))
		switch {
		case strings.Contains(lower, "password") || strings.Contains(lower, "encrypted"):
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("password protected archive %s", archivePath))
		case strings.Contains(lower, "missing volume") || strings.Contains(lower, "missing part"):
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("missing part for archive %s", archivePath))
		case strings.Contains(lower, "crc failed") || strings.Contains(lower, "corrupt") || strings.Contains(lower, "unexpected end"):
			return nil, apperr.New(apperr.KindPermanent, fmt.Sprintf("corrupt archive %s", archivePath))
		default:
			return nil, apperr.Wrap(apperr.KindPermanent, fmt.Sprintf("extract %s", archivePath), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out))))
		}
	}

	after := listFiles(destDir)
	var created []string
	for path := range after {
		if !before[path] {
			created = append(created, path)
		}
	}
	sort.Strings(created)
	return created, nil
}

func listFiles(dir string) map[string]bool {
	out := make(map[string]bool)
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		out[path] = true
		return nil
	})
	return out
}
