package preview

import (
	"path/filepath"
	"testing"

	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/settings"
)

func newTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store := catalog.New(filepath.Join(t.TempDir(), "catalog.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return store
}

func TestAddPreviewFirstAssetBecomesPrimary(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)
	design, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Fox"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	asset, err := svc.AddPreview(design.ID, models.PreviewSourceTelegramIngested, "/cache/fox.png", 512, 512, 0)
	if err != nil {
		t.Fatalf("AddPreview error: %v", err)
	}
	if !asset.IsPrimary {
		t.Fatalf("expected the first preview to become primary")
	}
}

// TestAddPreviewHigherPriorityTakesOver covers the fixed priority order:
// AI-selected > embedded-in-3D-archive > rendered > ingested > uploaded.
func TestAddPreviewHigherPriorityTakesOver(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)
	design, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Fox"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	if _, err := svc.AddPreview(design.ID, models.PreviewSourceTelegramIngested, "/cache/ingested.png", 256, 256, 0); err != nil {
		t.Fatalf("AddPreview error: %v", err)
	}
	rendered, err := svc.AddPreview(design.ID, models.PreviewSourceRendered, "/cache/rendered.png", 256, 256, 1)
	if err != nil {
		t.Fatalf("AddPreview error: %v", err)
	}
	if !rendered.IsPrimary {
		t.Fatalf("expected rendered preview to outrank ingested and become primary")
	}

	primary, ok := svc.Primary(design.ID)
	if !ok || primary.ID != rendered.ID {
		t.Fatalf("expected rendered asset to be the sole primary, got %+v ok=%v", primary, ok)
	}

	// A lower-priority preview added afterward must not steal primary back.
	if _, err := svc.AddPreview(design.ID, models.PreviewSourceUserUploaded, "/cache/uploaded.png", 256, 256, 2); err != nil {
		t.Fatalf("AddPreview error: %v", err)
	}
	primary, ok = svc.Primary(design.ID)
	if !ok || primary.ID != rendered.ID {
		t.Fatalf("expected rendered asset to remain primary, got %+v ok=%v", primary, ok)
	}
}

func TestShouldAutoQueueRenderRequiresZeroPreviewsAndSetting(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)
	settingsSvc := settings.NewService(store)

	design, err := store.CreateDesign(catalog.CreateDesignParams{CanonicalTitle: "Fox"})
	if err != nil {
		t.Fatalf("CreateDesign error: %v", err)
	}

	if !svc.ShouldAutoQueueRender(design.ID) {
		t.Fatalf("expected auto-queue to default true with zero previews")
	}

	if err := settingsSvc.Put(settings.KeyAutoQueueRenderAfterImport, false); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if svc.ShouldAutoQueueRender(design.ID) {
		t.Fatalf("expected auto-queue to be false once the setting is disabled")
	}

	if err := settingsSvc.Put(settings.KeyAutoQueueRenderAfterImport, true); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, err := svc.AddPreview(design.ID, models.PreviewSourceTelegramIngested, "/cache/fox.png", 1, 1, 0); err != nil {
		t.Fatalf("AddPreview error: %v", err)
	}
	if svc.ShouldAutoQueueRender(design.ID) {
		t.Fatalf("expected auto-queue to be false once a preview exists")
	}
}
