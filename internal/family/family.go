// Package family groups variant designs into families by shared file
// hashes (post-download) and, failing that, by name-pattern decomposition.
package family

import (
	"regexp"
	"sort"
	"strings"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

// Service runs family detection and tag aggregation against a catalog
// repository.
type Service struct {
	Repo catalog.Repository
}

// NewService builds a family Service over repo.
func NewService(repo catalog.Repository) *Service {
	return &Service{Repo: repo}
}

// channelPrefixPatterns strip decorative channel/group noise a chat source
// sometimes prepends to a caption-derived title, e.g. "[MyChannel] Dragon"
// or "MyChannel: Dragon".
var channelPrefixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[[^\]]+\]\s*`),
	regexp.MustCompile(`^[\w .]{1,40}:\s+`),
}

// StripChannelPrefix removes one leading decorative channel-prefix pattern
// from title, if present.
func StripChannelPrefix(title string) string {
	for _, p := range channelPrefixPatterns {
		if p.MatchString(title) {
			return strings.TrimSpace(p.ReplaceAllString(title, ""))
		}
	}
	return title
}

// variantSuffixPatterns recognise decorative variant suffixes appended to a
// family's base name, like " - Red", " v2", or " (Bust)". Each must anchor
// at the end of the string.
var variantSuffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[-–]\s*([A-Za-z0-9 ]+)$`),
	regexp.MustCompile(`(?i)\s+v(\d+(?:\.\d+)?)$`),
	regexp.MustCompile(`(?i)\s*\(([^()]+)\)\s*$`),
}

// Info is the result of decomposing a title into a family base name and an
// optional variant name.
type Info struct {
	BaseName    string
	VariantName string
}

// ExtractFamilyInfo decomposes title into base_name + variant_name using a
// best-effort suffix matcher. Quality is approximate by design;
// file-hash overlap is preferred whenever it is available.
func ExtractFamilyInfo(title string) Info {
	for _, p := range variantSuffixPatterns {
		if m := p.FindStringSubmatchIndex(title); m != nil {
			base := strings.TrimSpace(title[:m[0]])
			variant := strings.TrimSpace(title[m[2]:m[3]])
			if base != "" && variant != "" {
				return Info{BaseName: base, VariantName: variant}
			}
		}
	}
	return Info{BaseName: strings.TrimSpace(title)}
}

// Candidate is a family-detection match with its scoring confidence.
type Candidate struct {
	Design     models.Design
	Confidence float64
}

// DetectByFileOverlap scores every other non-deleted design against
// design's DesignFile SHA-256 set using Jaccard overlap, returning designs
// that share at least one hash.
func (s *Service) DetectByFileOverlap(design models.Design) []Candidate {
	mine := hashSet(s.Repo.ListDesignFiles(design.ID))
	if len(mine) == 0 {
		return nil
	}

	var out []Candidate
	for _, other := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
		if other.ID == design.ID || other.Status == models.DesignDeleted {
			continue
		}
		theirs := hashSet(s.Repo.ListDesignFiles(other.ID))
		if len(theirs) == 0 {
			continue
		}
		overlap := jaccard(mine, theirs)
		if overlap <= 0 {
			continue
		}
		out = append(out, Candidate{Design: other, Confidence: overlap})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func hashSet(files []models.DesignFile) map[string]bool {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		if f.SHA256 != "" {
			set[f.SHA256] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	intersection := 0
	for h := range a {
		if b[h] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// FindCandidatesByName decomposes design's effective title and returns
// every other non-deleted design whose decomposed base name matches,
// fixed confidence 0.5. Only called when strategy 1
// found nothing.
func (s *Service) FindCandidatesByName(design models.Design) []Candidate {
	info := ExtractFamilyInfo(StripChannelPrefix(design.EffectiveTitle()))
	if info.BaseName == "" {
		return nil
	}
	base := strings.ToLower(info.BaseName)

	var out []Candidate
	for _, other := range s.Repo.ListDesigns(catalog.DesignFilter{}) {
		if other.ID == design.ID || other.Status == models.DesignDeleted {
			continue
		}
		otherInfo := ExtractFamilyInfo(StripChannelPrefix(other.EffectiveTitle()))
		if strings.ToLower(otherInfo.BaseName) == base {
			out = append(out, Candidate{Design: other, Confidence: 0.5})
		}
	}
	return out
}

// Result summarises what DetectAndAssign did, for the worker's job result
// blob.
type Result struct {
	FamilyID        string
	FamilyCreated   bool
	CandidatesFound int
	Confidence      float64
}

// DetectAndAssign runs both detection strategies in order and assigns
// design to a family, creating one if no candidate already belongs to one.
// A design that already has a family is left untouched.
func (s *Service) DetectAndAssign(designID string) (Result, error) {
	design, ok := s.Repo.GetDesign(designID)
	if !ok {
		return Result{}, apperr.NotFoundf("design %s not found", designID)
	}
	if design.FamilyID != nil {
		return Result{FamilyID: *design.FamilyID}, nil
	}

	candidates := s.DetectByFileOverlap(design)
	method := models.FamilyMethodFileHashOverlap
	if len(candidates) == 0 {
		candidates = s.FindCandidatesByName(design)
		method = models.FamilyMethodNamePattern
	}
	if len(candidates) == 0 {
		return Result{}, nil
	}

	var existingFamilyID *string
	for _, c := range candidates {
		if c.Design.FamilyID != nil {
			existingFamilyID = c.Design.FamilyID
			break
		}
	}

	if existingFamilyID != nil {
		if _, err := s.Repo.AssignDesignFamily(designID, existingFamilyID); err != nil {
			return Result{}, err
		}
		s.recordVariantName(designID, design)
		if err := s.AggregateTags(*existingFamilyID); err != nil {
			return Result{}, err
		}
		return Result{FamilyID: *existingFamilyID, CandidatesFound: len(candidates)}, nil
	}

	var sum float64
	for _, c := range candidates {
		sum += c.Confidence
	}
	avgConfidence := sum / float64(len(candidates))

	info := ExtractFamilyInfo(StripChannelPrefix(design.EffectiveTitle()))
	familyName := info.BaseName
	if familyName == "" {
		familyName = design.EffectiveTitle()
	}

	fam, err := s.Repo.CreateFamily(familyName, method, avgConfidence)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.Repo.AssignDesignFamily(designID, &fam.ID); err != nil {
		return Result{}, err
	}
	s.recordVariantName(designID, design)
	for _, c := range candidates {
		if c.Design.FamilyID != nil {
			continue
		}
		if _, err := s.Repo.AssignDesignFamily(c.Design.ID, &fam.ID); err != nil {
			return Result{}, err
		}
		s.recordVariantName(c.Design.ID, c.Design)
	}
	if err := s.AggregateTags(fam.ID); err != nil {
		return Result{}, err
	}

	return Result{
		FamilyID:        fam.ID,
		FamilyCreated:   true,
		CandidatesFound: len(candidates),
		Confidence:      avgConfidence,
	}, nil
}

// recordVariantName stores the decomposed variant suffix on a design once
// it joins a family, when the decomposition yields one.
func (s *Service) recordVariantName(designID string, design models.Design) {
	info := ExtractFamilyInfo(StripChannelPrefix(design.EffectiveTitle()))
	if info.VariantName == "" {
		return
	}
	_, _ = s.Repo.SetDesignVariantName(designID, info.VariantName)
}

// AggregateTags recomputes a family's tags as the union of every member
// design's manual + automatic-caption tags, then re-synthesises the
// family's AI tags from its members' current AI tags, replacing whatever
// was there before.
func (s *Service) AggregateTags(familyID string) error {
	members := s.Repo.ListDesignsByFamily(familyID)

	union := make(map[string]bool)
	aiTags := make(map[string]bool)
	for _, d := range members {
		for _, dt := range s.Repo.ListDesignTags(d.ID) {
			switch dt.Source {
			case models.TagSourceManual, models.TagSourceAutomaticCaption, models.TagSourceUser:
				union[dt.TagID] = true
			case models.TagSourceAI:
				aiTags[dt.TagID] = true
			}
		}
	}

	for _, ft := range s.Repo.ListFamilyTags(familyID) {
		if ft.Source == models.TagSourceAI {
			if err := s.Repo.UntagFamily(familyID, ft.TagID); err != nil {
				return err
			}
		}
	}

	for tagID := range union {
		if err := s.Repo.TagFamily(familyID, tagID, models.TagSourceManual); err != nil {
			return err
		}
	}
	for tagID := range aiTags {
		if err := s.Repo.TagFamily(familyID, tagID, models.TagSourceAI); err != nil {
			return err
		}
	}
	return nil
}
