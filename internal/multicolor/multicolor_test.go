package multicolor

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestDetectFromTextMatchesPatterns(t *testing.T) {
	cases := []string{
		"This is a multi-color print",
		"Requires MMU unit",
		"Printed with AMS",
		"IDEX dual extrusion",
		"dual color variant",
		"multi material support needed",
		"comes in 4 colors",
	}
	for _, text := range cases {
		if !DetectFromText(text) {
			t.Errorf("expected DetectFromText(%q) to match", text)
		}
	}
}

func TestDetectFromTextNoMatch(t *testing.T) {
	if DetectFromText("a simple single-body dragon bust") {
		t.Fatal("expected no multicolor match")
	}
}

func TestDetectFromCaptionAndFilenamesChecksBoth(t *testing.T) {
	if !DetectFromCaptionAndFilenames("", []string{"dragon_multicolor.stl"}) {
		t.Fatal("expected filename match to trigger detection")
	}
}

func buildTestModel(t *testing.T, xmlBody string) *bytes.Reader {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	w, err := zw.Create("3D/3dmodel.model")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(xmlBody)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestAnalyzeZipDetectsMultipleBaseColors(t *testing.T) {
	xmlBody := `<model>
		<resources>
			<basematerials id="1">
				<base name="red" color="#FF0000"/>
				<base name="blue" color="#0000FF"/>
			</basematerials>
		</resources>
	</model>`
	r := buildTestModel(t, xmlBody)
	zr, err := zip.NewReader(r, r.Size())
	if err != nil {
		t.Fatalf("zip.NewReader error: %v", err)
	}
	result, err := analyzeZip(zr)
	if err != nil {
		t.Fatalf("analyzeZip error: %v", err)
	}
	if !result.IsMulticolor {
		t.Fatalf("expected multicolor detection, got %+v", result)
	}
	if len(result.Colors) != 2 {
		t.Fatalf("expected 2 distinct colors, got %v", result.Colors)
	}
}

func TestAnalyzeZipSingleColorIsNotMulticolor(t *testing.T) {
	xmlBody := `<model>
		<resources>
			<basematerials id="1">
				<base name="red" color="#FF0000"/>
			</basematerials>
		</resources>
	</model>`
	r := buildTestModel(t, xmlBody)
	zr, err := zip.NewReader(r, r.Size())
	if err != nil {
		t.Fatalf("zip.NewReader error: %v", err)
	}
	result, err := analyzeZip(zr)
	if err != nil {
		t.Fatalf("analyzeZip error: %v", err)
	}
	if result.IsMulticolor {
		t.Fatalf("expected single-color model to not be multicolor, got %+v", result)
	}
}
