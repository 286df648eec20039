// Package settings implements the typed key/value configuration service:
// a fixed schema with numeric bounds, defaults, and validated writes,
// backed by the catalog store.
package settings

import (
	"encoding/json"
	"fmt"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/catalog"
)

// ValueType enumerates the scalar kinds a setting may hold.
type ValueType string

const (
	TypeInt    ValueType = "int"
	TypeBool   ValueType = "bool"
	TypeString ValueType = "string"
)

// Definition describes one entry in the fixed settings schema.
type Definition struct {
	Key             string
	Type            ValueType
	Min             *float64
	Max             *float64
	Description     string
	Default         any
	RestartRequired bool
}

// Schema is the fixed key → definition map. Keys referenced
// elsewhere in the pipeline (worker concurrency, archive cleanup, preview
// auto-queue, AI auto-analyze) are named constants below.
var Schema = map[string]Definition{
	KeyMaxConcurrentDownloads: {
		Key: KeyMaxConcurrentDownloads, Type: TypeInt,
		Min: floatPtr(1), Max: floatPtr(10),
		Description:     "Maximum number of DOWNLOAD_DESIGN jobs processed concurrently.",
		Default:         3,
		RestartRequired: true,
	},
	KeyDeleteArchivesAfterExtraction: {
		Key: KeyDeleteArchivesAfterExtraction, Type: TypeBool,
		Description: "Delete an archive from staging once it has been successfully extracted.",
		Default:     true,
	},
	KeyAutoQueueRenderAfterImport: {
		Key: KeyAutoQueueRenderAfterImport, Type: TypeBool,
		Description: "Queue a GENERATE_RENDER job automatically when an imported design has no preview.",
		Default:     true,
	},
	KeyAIAutoAnalyzeOnImport: {
		Key: KeyAIAutoAnalyzeOnImport, Type: TypeBool,
		Description: "Queue an AI_ANALYZE_DESIGN job automatically after IMPORT_TO_LIBRARY succeeds.",
		Default:     false,
	},
	KeyAdapterCallTimeoutSeconds: {
		Key: KeyAdapterCallTimeoutSeconds, Type: TypeInt,
		Min: floatPtr(1), Max: floatPtr(300),
		Description: "Per-call timeout for source adapter network operations.",
		Default:     30,
	},
	KeyLibraryPathTemplate: {
		Key: KeyLibraryPathTemplate, Type: TypeString,
		Description: "Template for the organised library path; supports {designer}, {channel}, {title}, {date}.",
		Default:     "{designer}/{channel}/{title}",
	},
}

// Settings keys used by other packages; centralised here so a rename only
// touches this file.
const (
	KeyMaxConcurrentDownloads        = "max_concurrent_downloads"
	KeyDeleteArchivesAfterExtraction = "delete_archives_after_extraction"
	KeyAutoQueueRenderAfterImport    = "auto_queue_render_after_import"
	KeyAIAutoAnalyzeOnImport         = "ai_auto_analyze_on_import"
	KeyAdapterCallTimeoutSeconds     = "adapter_call_timeout_seconds"
	KeyLibraryPathTemplate           = "library_path_template"
)

func floatPtr(v float64) *float64 { return &v }

// Service reads and writes settings against the catalog store, enforcing
// the schema.
type Service struct {
	Repo catalog.Repository
}

// NewService builds a settings Service over repo.
func NewService(repo catalog.Repository) *Service {
	return &Service{Repo: repo}
}

// Get returns a setting's current value, falling back to its schema default
// when no row has been written.
func (s *Service) Get(key string) (any, error) {
	def, ok := Schema[key]
	if !ok {
		return nil, apperr.NotFoundf("unknown setting %q", key)
	}
	row, ok := s.Repo.GetSetting(key)
	if !ok {
		return def.Default, nil
	}
	var v any
	if err := json.Unmarshal(row.Value, &v); err != nil {
		return nil, apperr.Wrap(apperr.KindPermanent, fmt.Sprintf("corrupt setting value for %q", key), err)
	}
	return v, nil
}

// GetBool is a typed convenience wrapper over Get for TypeBool settings.
func (s *Service) GetBool(key string) (bool, error) {
	v, err := s.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, apperr.Validationf("setting %q is not a bool", key)
	}
	return b, nil
}

// GetInt is a typed convenience wrapper over Get for TypeInt settings.
func (s *Service) GetInt(key string) (int, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, apperr.Validationf("setting %q is not an int", key)
	}
}

// GetString is a typed convenience wrapper over Get for TypeString settings.
func (s *Service) GetString(key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", apperr.Validationf("setting %q is not a string", key)
	}
	return str, nil
}

// Put validates value against the schema and writes it, unless it equals
// the schema default, in which case the custom row is removed instead: a
// write equal to the default does not persist.
func (s *Service) Put(key string, value any) error {
	def, ok := Schema[key]
	if !ok {
		return apperr.NotFoundf("unknown setting %q", key)
	}
	if err := validate(def, value); err != nil {
		return err
	}
	if value == def.Default {
		return s.Repo.DeleteSetting(key)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, fmt.Sprintf("encode setting %q", key), err)
	}
	return s.Repo.SetSetting(key, encoded)
}

func validate(def Definition, value any) error {
	switch def.Type {
	case TypeInt:
		n, ok := asFloat(value)
		if !ok {
			return apperr.Validationf("setting %q must be an integer", def.Key)
		}
		if def.Min != nil && n < *def.Min {
			return apperr.Validationf("setting %q must be >= %v", def.Key, *def.Min)
		}
		if def.Max != nil && n > *def.Max {
			return apperr.Validationf("setting %q must be <= %v", def.Key, *def.Max)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return apperr.Validationf("setting %q must be a bool", def.Key)
		}
	case TypeString:
		if _, ok := value.(string); !ok {
			return apperr.Validationf("setting %q must be a string", def.Key)
		}
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ResetToDefaults removes every custom setting row and returns the full
// default map.
func (s *Service) ResetToDefaults() map[string]any {
	for key := range Schema {
		_ = s.Repo.DeleteSetting(key)
	}
	defaults := make(map[string]any, len(Schema))
	for key, def := range Schema {
		defaults[key] = def.Default
	}
	return defaults
}

// List returns every schema entry alongside its effective current value.
type Entry struct {
	Definition
	Value any
}

// List returns the full schema with each entry's effective value resolved.
func (s *Service) List() ([]Entry, error) {
	out := make([]Entry, 0, len(Schema))
	for _, def := range Schema {
		v, err := s.Get(def.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Definition: def, Value: v})
	}
	return out, nil
}
