// Package multicolor implements the two multicolor detection sources: a
// caption/filename keyword heuristic and a structural scan of a 3MF
// archive's model XML, used to set Design.Multicolor and its source.
package multicolor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// patterns are the fixed multicolor keyword patterns (case-insensitive),
// grounded in the original detector's exact pattern set.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)multi[- ]?colou?r`),
	regexp.MustCompile(`(?i)\bMMU\b`),
	regexp.MustCompile(`(?i)\bAMS\b`),
	regexp.MustCompile(`(?i)\bIDEX\b`),
	regexp.MustCompile(`(?i)dual[- ]?colou?r`),
	regexp.MustCompile(`(?i)multi[- ]?material`),
	regexp.MustCompile(`(?i)\d+\s*colou?rs?`),
}

// DetectFromText reports whether text matches any multicolor keyword
// pattern.
func DetectFromText(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectFromCaptionAndFilenames runs the heuristic over a message caption
// and its attachment filenames, source HEURISTIC.
func DetectFromCaptionAndFilenames(caption string, filenames []string) bool {
	if DetectFromText(caption) {
		return true
	}
	for _, f := range filenames {
		if DetectFromText(f) {
			return true
		}
	}
	return false
}

// modelFileCandidates are the conventional locations of a 3MF's model XML.
var modelFileCandidates = []string{
	"3D/3dmodel.model",
	"3dmodel.model",
	"Metadata/model.model",
}

// AnalysisResult carries the structural findings from a 3MF scan, surfaced
// for diagnostics alongside the boolean verdict.
type AnalysisResult struct {
	IsMulticolor bool
	Colors       []string
	Materials    []string
}

// AnalyzeFile opens a 3MF archive at path and scans its model XML for
// distinct base-material and color nodes (source 3MF_ANALYSIS). Two or more
// distinct values is treated as multicolor.
func AnalyzeFile(path string) (AnalysisResult, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("open 3mf archive %s: %w", path, err)
	}
	defer zr.Close()
	return analyzeZip(&zr.Reader)
}

func analyzeZip(zr *zip.Reader) (AnalysisResult, error) {
	modelFile := findModelFile(zr)
	if modelFile == nil {
		return AnalysisResult{}, nil
	}
	rc, err := modelFile.Open()
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("open 3mf model entry %s: %w", modelFile.Name, err)
	}
	defer rc.Close()

	colors, materials, err := scanModelXML(rc)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("parse 3mf model xml: %w", err)
	}
	return AnalysisResult{
		IsMulticolor: len(colors) > 1 || len(materials) > 1,
		Colors:       colors,
		Materials:    materials,
	}, nil
}

func findModelFile(zr *zip.Reader) *zip.File {
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}
	for _, candidate := range modelFileCandidates {
		if f, ok := byName[candidate]; ok {
			return f
		}
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".model") {
			return f
		}
	}
	return nil
}

// localName strips any XML namespace prefix from a decoded element/attribute
// name, mirroring the Python implementation's tag_local split on "}".
func localName(name xml.Name) string {
	return strings.ToLower(name.Local)
}

func scanModelXML(r io.Reader) ([]string, []string, error) {
	dec := xml.NewDecoder(r)
	colorSet := make(map[string]bool)
	materialSet := make(map[string]bool)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch localName(start.Name) {
		case "base":
			if color := attrValue(start, "color"); color != "" {
				colorSet[color] = true
			}
		case "color":
			if value := attrValue(start, "value"); value != "" {
				colorSet[value] = true
			} else if text := elementText(dec); text != "" {
				colorSet[text] = true
			}
		case "object", "component":
			if id := attrValue(start, "materialid"); id != "" {
				materialSet[id] = true
			} else if id := attrValue(start, "pid"); id != "" {
				materialSet[id] = true
			}
		case "basematerials":
			if id := attrValue(start, "id"); id != "" {
				materialSet["basematerials_"+id] = true
			}
		}
	}

	return keys(colorSet), keys(materialSet), nil
}

func attrValue(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if strings.EqualFold(a.Name.Local, local) {
			return a.Value
		}
	}
	return ""
}

// elementText reads the character data immediately following a StartElement
// token, used for <color>value</color>-style nodes rather than attribute
// form.
func elementText(dec *xml.Decoder) string {
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if chars, ok := tok.(xml.CharData); ok {
		return strings.TrimSpace(string(chars))
	}
	return ""
}

func keys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
