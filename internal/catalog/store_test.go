package catalog

import (
	"path/filepath"
	"testing"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store := New(filepath.Join(dir, "catalog.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return store
}

func TestCreateAndGetDesign(t *testing.T) {
	store := newTestStore(t)

	design, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Dragon Bust", CanonicalDesigner: "Acme"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}
	if design.Status != models.DesignDiscovered {
		t.Fatalf("expected DISCOVERED status, got %s", design.Status)
	}

	got, ok := store.GetDesign(design.ID)
	if !ok {
		t.Fatalf("expected design to be found")
	}
	if got.CanonicalTitle != "Dragon Bust" {
		t.Fatalf("unexpected title %q", got.CanonicalTitle)
	}
}

func TestDesignStatusTransitionsAreForwardOnly(t *testing.T) {
	store := newTestStore(t)
	design, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Fox"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	if _, err := store.TransitionDesignStatus(design.ID, models.DesignWanted); err != nil {
		t.Fatalf("forward transition should succeed: %v", err)
	}
	if _, err := store.TransitionDesignStatus(design.ID, models.DesignDiscovered); err == nil {
		t.Fatalf("expected backward transition to fail")
	} else if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict kind, got %v", apperr.KindOf(err))
	}

	if _, err := store.TransitionDesignStatus(design.ID, models.DesignDeleted); err != nil {
		t.Fatalf("transition to DELETED should always succeed: %v", err)
	}
}

func TestEffectiveTitleUsesOverride(t *testing.T) {
	store := newTestStore(t)
	design, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Fox", CanonicalDesigner: "Bob"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	if design.EffectiveTitle() != "Fox" {
		t.Fatalf("expected canonical title, got %q", design.EffectiveTitle())
	}

	override := "Custom Fox"
	updated, err := store.ApplyDesignOverrides(design.ID, DesignOverrides{TitleOverride: &override})
	if err != nil {
		t.Fatalf("ApplyDesignOverrides error: %v", err)
	}
	if updated.EffectiveTitle() != "Custom Fox" {
		t.Fatalf("expected override title, got %q", updated.EffectiveTitle())
	}
}

func TestMulticolorSourcePrecedence(t *testing.T) {
	store := newTestStore(t)
	design, _ := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Vase"})

	if _, err := store.SetDesignMulticolor(design.ID, models.MulticolorYes, models.MulticolorSource3MFAnalysis); err != nil {
		t.Fatalf("SetDesignMulticolor error: %v", err)
	}
	after, err := store.SetDesignMulticolor(design.ID, models.MulticolorNo, models.MulticolorSourceHeuristic)
	if err != nil {
		t.Fatalf("SetDesignMulticolor error: %v", err)
	}
	if after.Multicolor != models.MulticolorYes {
		t.Fatalf("lower-precedence heuristic should not override 3MF analysis, got %s", after.Multicolor)
	}

	final, err := store.SetDesignMulticolor(design.ID, models.MulticolorNo, models.MulticolorSourceUserOverride)
	if err != nil {
		t.Fatalf("SetDesignMulticolor error: %v", err)
	}
	if final.Multicolor != models.MulticolorNo {
		t.Fatalf("user override should win, got %s", final.Multicolor)
	}
}

func TestMergeDesignsReparentsChildren(t *testing.T) {
	store := newTestStore(t)
	target, _ := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Target"})
	candidate, _ := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Candidate"})

	if _, err := store.AddDesignFile(models.DesignFile{DesignID: candidate.ID, Filename: "a.stl", SHA256: "abc"}); err != nil {
		t.Fatalf("AddDesignFile error: %v", err)
	}
	if _, err := store.CreateDuplicateCandidate(target.ID, candidate.ID, models.MatchHash); err != nil {
		t.Fatalf("CreateDuplicateCandidate error: %v", err)
	}

	if err := store.MergeDesigns(target.ID, candidate.ID); err != nil {
		t.Fatalf("MergeDesigns error: %v", err)
	}

	files := store.ListDesignFiles(target.ID)
	if len(files) != 1 || files[0].Filename != "a.stl" {
		t.Fatalf("expected file reparented to target, got %+v", files)
	}

	merged, ok := store.GetDesign(candidate.ID)
	if !ok || merged.Status != models.DesignDeleted {
		t.Fatalf("expected candidate design to be DELETED, got %+v ok=%v", merged, ok)
	}

	pending := store.ListPendingDuplicateCandidates()
	if len(pending) != 0 {
		t.Fatalf("expected no pending duplicate candidates after merge, got %d", len(pending))
	}
}

func TestSnapshotPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	first := New(path)
	if err := first.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if _, err := first.CreateChannel(nil, "My Channel", false); err != nil {
		t.Fatalf("CreateChannel error: %v", err)
	}

	second := New(path)
	if err := second.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	channels := second.ListChannels()
	if len(channels) != 1 || channels[0].Title != "My Channel" {
		t.Fatalf("expected persisted channel to survive reload, got %+v", channels)
	}
}

func TestEnsureTagNormalizesCase(t *testing.T) {
	store := newTestStore(t)
	a, err := store.EnsureTag("Dragon", "creature")
	if err != nil {
		t.Fatalf("EnsureTag error: %v", err)
	}
	b, err := store.EnsureTag("dragon", "creature")
	if err != nil {
		t.Fatalf("EnsureTag error: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected case-insensitive tag reuse, got distinct ids %s vs %s", a.ID, b.ID)
	}
}

func TestCountsReflectDesignStatus(t *testing.T) {
	store := newTestStore(t)
	d1, _ := store.CreateDesign(CreateDesignParams{CanonicalTitle: "A"})
	d2, _ := store.CreateDesign(CreateDesignParams{CanonicalTitle: "B"})
	if _, err := store.TransitionDesignStatus(d2.ID, models.DesignWanted); err != nil {
		t.Fatalf("TransitionDesignStatus error: %v", err)
	}
	if _, err := store.TransitionDesignStatus(d2.ID, models.DesignDownloading); err != nil {
		t.Fatalf("TransitionDesignStatus error: %v", err)
	}
	if _, err := store.TransitionDesignStatus(d2.ID, models.DesignDownloaded); err != nil {
		t.Fatalf("TransitionDesignStatus error: %v", err)
	}
	_ = d1

	summary := store.Counts(false)
	if summary.TotalDesigns != 2 {
		t.Fatalf("expected 2 total designs, got %d", summary.TotalDesigns)
	}
	if summary.PendingDesigns != 1 {
		t.Fatalf("expected 1 pending design, got %d", summary.PendingDesigns)
	}
	if summary.DownloadedDesigns != 1 {
		t.Fatalf("expected 1 downloaded design, got %d", summary.DownloadedDesigns)
	}
}
