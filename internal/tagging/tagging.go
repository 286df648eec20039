// Package tagging derives automatic tags from message captions and
// filenames.
package tagging

import (
	"regexp"
	"strings"

	"github.com/AdamA817/printarr-sub001/internal/models"
)

// MaxTagsPerSource caps how many tags a single extraction pass may produce
// per source, so a pathological caption or filename cannot flood a design
// with tags.
const MaxTagsPerSource = 10

var hashtagPattern = regexp.MustCompile(`#(\w[\w-]*)`)

// filenameSplitPattern splits filename tokens on underscore, space,
// hyphen, or dot runs.
var filenameSplitPattern = regexp.MustCompile(`[_ \-.]+`)

// filenameStopWords suppresses tokens that carry no tag value: common
// English words, file-format and packaging noise, number and size words,
// and 3D-printing terms that appear in nearly every filename.
var filenameStopWords = map[string]bool{
	// Common words
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"into": true, "this": true, "that": true, "all": true, "any": true,
	"are": true, "was": true, "were": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "having": true, "does": true,
	"did": true, "doing": true, "will": true, "would": true, "should": true,
	"could": true, "can": true, "may": true, "might": true, "must": true,
	"shall": true, "not": true, "but": true, "what": true, "which": true,
	"who": true, "whom": true, "how": true, "when": true, "where": true,
	"why": true, "only": true, "just": true, "also": true, "very": true,
	"too": true,
	// File-related
	"stl": true, "3mf": true, "obj": true, "step": true, "stp": true,
	"zip": true, "rar": true, "tar": true, "file": true, "files": true,
	"part": true, "parts": true, "model": true, "models": true,
	"print": true, "printer": true, "printed": true, "printing": true,
	"printable": true, "download": true, "free": true, "new": true,
	"version": true, "update": true, "updated": true,
	// Numbers and sizes
	"one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "size": true, "small": true,
	"medium": true, "large": true, "big": true,
	// Common 3D printing terms that aren't useful as tags
	"layer": true, "layers": true, "infill": true, "support": true,
	"supports": true, "base": true, "preview": true, "thumbnail": true,
	"image": true, "images": true, "photo": true, "photos": true,
}

// ExtractFromCaption returns lowercase hashtag tokens found in a message
// caption, source automatic-caption, capped at MaxTagsPerSource.
func ExtractFromCaption(caption string) []string {
	if caption == "" {
		return nil
	}
	matches := hashtagPattern.FindAllStringSubmatch(caption, -1)
	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) >= MaxTagsPerSource {
			break
		}
	}
	return tags
}

// ExtractFromFilename returns lowercase alphanumeric tokens of length ≥ 3
// parsed out of filename, excluding the stop-word set, source
// automatic-filename, capped at MaxTagsPerSource.
func ExtractFromFilename(filename string) []string {
	base := filename
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	tokens := filenameSplitPattern.Split(base, -1)
	seen := make(map[string]bool, len(tokens))
	var tags []string
	for _, tok := range tokens {
		tag := strings.ToLower(tok)
		if len(tag) < 3 || !isAlphanumeric(tag) || filenameStopWords[tag] || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) >= MaxTagsPerSource {
			break
		}
	}
	return tags
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// TagCandidate pairs an extracted tag name with the source that produced it,
// ready for catalog.Store.TagDesign or TagFamily.
type TagCandidate struct {
	Name   string
	Source models.TagSource
}

// ExtractAutoTags runs both extraction rules over a caption and a list of
// candidate-design filenames, returning a deduplicated candidate set.
func ExtractAutoTags(caption string, filenames []string) []TagCandidate {
	seen := make(map[string]bool)
	var out []TagCandidate
	for _, tag := range ExtractFromCaption(caption) {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, TagCandidate{Name: tag, Source: models.TagSourceAutomaticCaption})
	}
	for _, filename := range filenames {
		for _, tag := range ExtractFromFilename(filename) {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, TagCandidate{Name: tag, Source: models.TagSourceAutomaticFilename})
		}
	}
	return out
}
