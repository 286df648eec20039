package catalog

import (
	"testing"

	"github.com/AdamA817/printarr-sub001/internal/models"
)

func TestBuildSearchVectorWeightsTitleAndDesigner(t *testing.T) {
	got := BuildSearchVector("Dragon v2", "Acme Labs")
	want := "dragon:A v2:A acme:B labs:B"
	if got != want {
		t.Fatalf("BuildSearchVector = %q, want %q", got, want)
	}
}

func TestSearchRankTitleOutranksDesigner(t *testing.T) {
	titleHit := searchRank(BuildSearchVector("Dragon Bust", "Acme"), "dragon")
	designerHit := searchRank(BuildSearchVector("Castle Tower", "Dragon Forge"), "dragon")

	if titleHit <= 0 || designerHit <= 0 {
		t.Fatalf("expected both designs to match, got %v and %v", titleHit, designerHit)
	}
	if titleHit <= designerHit {
		t.Fatalf("expected title match (%v) to outrank designer match (%v)", titleHit, designerHit)
	}
}

func TestSearchRankSubstringFallsBackToTrigrams(t *testing.T) {
	vector := BuildSearchVector("Dragon Bust", "Acme")
	if rank := searchRank(vector, "rago"); rank <= 0 {
		t.Fatalf("expected substring query to match via the fallback, got rank %v", rank)
	}
	if rank := searchRank(vector, "zzzz"); rank != 0 {
		t.Fatalf("expected unrelated query to miss, got rank %v", rank)
	}
}

func TestSearchRankRequiresEveryTerm(t *testing.T) {
	vector := BuildSearchVector("Dragon Bust", "Acme")
	if rank := searchRank(vector, "dragon zzzz"); rank != 0 {
		t.Fatalf("expected a query with an unmatched term to miss entirely, got %v", rank)
	}
}

func TestListDesignsRanksTitleMatchesFirst(t *testing.T) {
	store := newTestStore(t)

	byTitle, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Dragon Bust", CanonicalDesigner: "Acme"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}
	byDesigner, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Castle Tower", CanonicalDesigner: "Dragon Forge"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}
	if _, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Fox", CanonicalDesigner: "Someone"}); err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	results := store.ListDesigns(DesignFilter{Query: "dragon"})
	if len(results) != 2 {
		t.Fatalf("expected the two dragon designs, got %d", len(results))
	}
	if results[0].ID != byTitle.ID {
		t.Fatalf("expected the title match ranked first, got %q", results[0].CanonicalTitle)
	}
	if results[1].ID != byDesigner.ID {
		t.Fatalf("expected the designer match ranked second, got %q", results[1].CanonicalTitle)
	}
}

func TestListDesignsSubstringQueryMatches(t *testing.T) {
	store := newTestStore(t)
	design, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Dragon Bust", CanonicalDesigner: "Acme"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	results := store.ListDesigns(DesignFilter{Query: "rago"})
	if len(results) != 1 || results[0].ID != design.ID {
		t.Fatalf("expected the substring query to find the design, got %+v", results)
	}
}

func TestApplyDesignOverridesRefreshesSearchVector(t *testing.T) {
	store := newTestStore(t)
	design, err := store.CreateDesign(CreateDesignParams{CanonicalTitle: "Dragon Bust", CanonicalDesigner: "Acme"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	override := "Crimson Wyvern"
	updated, err := store.ApplyDesignOverrides(design.ID, DesignOverrides{TitleOverride: &override})
	if err != nil {
		t.Fatalf("ApplyDesignOverrides error: %v", err)
	}
	if updated.SearchVector != BuildSearchVector("Crimson Wyvern", "Acme") {
		t.Fatalf("expected search vector recomputed from the override, got %q", updated.SearchVector)
	}

	results := store.ListDesigns(DesignFilter{Query: "wyvern"})
	if len(results) != 1 || results[0].ID != design.ID {
		t.Fatalf("expected override title to be searchable, got %+v", results)
	}
}

func TestDesignSearchVectorRecomputesForLegacyRows(t *testing.T) {
	d := models.Design{CanonicalTitle: "Dragon", CanonicalDesigner: "Acme"}
	if got := designSearchVector(d); got != BuildSearchVector("Dragon", "Acme") {
		t.Fatalf("expected vector recomputed for a row without one, got %q", got)
	}
}
