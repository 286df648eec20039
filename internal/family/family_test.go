package family

import (
	"path/filepath"
	"testing"

	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/models"
)

func newTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store := catalog.New(filepath.Join(t.TempDir(), "catalog.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return store
}

func TestExtractFamilyInfoDecomposesVariantSuffix(t *testing.T) {
	cases := []struct {
		title       string
		wantBase    string
		wantVariant string
	}{
		{"Dragon Bust - Red", "Dragon Bust", "Red"},
		{"Dragon Bust v2", "Dragon Bust", "2"},
		{"Dragon Bust (Bust)", "Dragon Bust", "Bust"},
		{"Dragon Bust", "Dragon Bust", ""},
	}
	for _, c := range cases {
		info := ExtractFamilyInfo(c.title)
		if info.BaseName != c.wantBase {
			t.Errorf("ExtractFamilyInfo(%q).BaseName = %q, want %q", c.title, info.BaseName, c.wantBase)
		}
		if info.VariantName != c.wantVariant {
			t.Errorf("ExtractFamilyInfo(%q).VariantName = %q, want %q", c.title, info.VariantName, c.wantVariant)
		}
	}
}

// TestDetectAndAssignByFileOverlap: two designs sharing 2 of 3 file hashes
// form a new FILE_HASH_OVERLAP family at confidence ~2/3.
func TestDetectAndAssignByFileOverlap(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)

	v1, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Dragon v1"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}
	v2, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Dragon v2"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	shared := []string{"hash-a", "hash-b"}
	for _, h := range shared {
		if _, err := store.AddDesignFile(models.DesignFile{DesignID: v1.ID, Filename: h + ".stl", SHA256: h}); err != nil {
			t.Fatalf("AddDesignFile error: %v", err)
		}
		if _, err := store.AddDesignFile(models.DesignFile{DesignID: v2.ID, Filename: h + ".stl", SHA256: h}); err != nil {
			t.Fatalf("AddDesignFile error: %v", err)
		}
	}
	if _, err := store.AddDesignFile(models.DesignFile{DesignID: v1.ID, Filename: "only-v1.stl", SHA256: "hash-c"}); err != nil {
		t.Fatalf("AddDesignFile error: %v", err)
	}

	result, err := svc.DetectAndAssign(v2.ID)
	if err != nil {
		t.Fatalf("DetectAndAssign error: %v", err)
	}
	if !result.FamilyCreated {
		t.Fatalf("expected a new family to be created")
	}
	if result.Confidence < 0.6 || result.Confidence > 0.7 {
		t.Fatalf("expected confidence near 2/3, got %v", result.Confidence)
	}

	fam, ok := store.GetFamily(result.FamilyID)
	if !ok {
		t.Fatalf("expected family to exist")
	}
	if fam.DetectionMethod != models.FamilyMethodFileHashOverlap {
		t.Fatalf("expected FILE_HASH_OVERLAP method, got %s", fam.DetectionMethod)
	}

	members := store.ListDesignsByFamily(result.FamilyID)
	if len(members) != 2 {
		t.Fatalf("expected both designs in the family, got %d", len(members))
	}
}

func TestDetectAndAssignSkipsDesignAlreadyInFamily(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)

	d, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Fox"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}
	fam, err := store.CreateFamily("Fox", models.FamilyMethodManual, 1.0)
	if err != nil {
		t.Fatalf("CreateFamily error: %v", err)
	}
	if _, err := store.AssignDesignFamily(d.ID, &fam.ID); err != nil {
		t.Fatalf("AssignDesignFamily error: %v", err)
	}

	result, err := svc.DetectAndAssign(d.ID)
	if err != nil {
		t.Fatalf("DetectAndAssign error: %v", err)
	}
	if result.FamilyID != fam.ID || result.FamilyCreated {
		t.Fatalf("expected existing family to be left untouched, got %+v", result)
	}
}

// TestDetectAndAssignFallsBackToNamePattern covers strategy 2: when no file
// hashes overlap, a shared decomposed base name groups designs at the fixed
// 0.5 confidence.
func TestDetectAndAssignFallsBackToNamePattern(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)

	base, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Dragon Bust"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}
	variant, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Dragon Bust - Red"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	result, err := svc.DetectAndAssign(variant.ID)
	if err != nil {
		t.Fatalf("DetectAndAssign error: %v", err)
	}
	if !result.FamilyCreated {
		t.Fatalf("expected a name-pattern family to be created")
	}
	if result.Confidence != 0.5 {
		t.Fatalf("expected fixed 0.5 confidence for NAME_PATTERN, got %v", result.Confidence)
	}

	fam, ok := store.GetFamily(result.FamilyID)
	if !ok || fam.DetectionMethod != models.FamilyMethodNamePattern {
		t.Fatalf("expected NAME_PATTERN method, got %+v", fam)
	}

	members := store.ListDesignsByFamily(result.FamilyID)
	ids := map[string]bool{}
	for _, m := range members {
		ids[m.ID] = true
	}
	if !ids[base.ID] || !ids[variant.ID] {
		t.Fatalf("expected both base and variant in the family, got %+v", members)
	}
}

func TestAggregateTagsUnionsMemberTags(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)

	d1, _ := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "A"})
	d2, _ := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "B"})
	fam, err := store.CreateFamily("A", models.FamilyMethodManual, 1.0)
	if err != nil {
		t.Fatalf("CreateFamily error: %v", err)
	}
	if _, err := store.AssignDesignFamily(d1.ID, &fam.ID); err != nil {
		t.Fatalf("AssignDesignFamily error: %v", err)
	}
	if _, err := store.AssignDesignFamily(d2.ID, &fam.ID); err != nil {
		t.Fatalf("AssignDesignFamily error: %v", err)
	}

	fantasy, err := store.EnsureTag("fantasy", "")
	if err != nil {
		t.Fatalf("EnsureTag error: %v", err)
	}
	dragon, err := store.EnsureTag("dragon", "")
	if err != nil {
		t.Fatalf("EnsureTag error: %v", err)
	}
	if err := store.TagDesign(d1.ID, fantasy.ID, models.TagSourceManual); err != nil {
		t.Fatalf("TagDesign error: %v", err)
	}
	if err := store.TagDesign(d2.ID, dragon.ID, models.TagSourceAutomaticCaption); err != nil {
		t.Fatalf("TagDesign error: %v", err)
	}

	if err := svc.AggregateTags(fam.ID); err != nil {
		t.Fatalf("AggregateTags error: %v", err)
	}

	tags := store.ListFamilyTags(fam.ID)
	if len(tags) != 2 {
		t.Fatalf("expected union of 2 tags at family scope, got %d", len(tags))
	}
}
