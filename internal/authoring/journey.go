// Package authoring loads a journey document from whatever format the
// author wrote it in. The canonical AST compiler input (internal/ast,
// internal/schema) is always the JSON shape spec.md §6 describes: a tree of
// nil/bool/float64/string/[]any/map[string]any values. This package's job is
// transcoding — turning a YAML-authored journey into that exact shape — not
// reinterpreting it: the decoded document is handed to CheckRawSerializability
// and CheckDocument unchanged once transcoded.
package authoring

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relayform/journeyengine/internal/schema"
)

// LoadDocument reads a journey definition from path, decoding it as YAML
// when the extension is .yaml/.yml and as JSON otherwise, then runs the
// pre-compile serializability check (spec.md §6) before returning it.
func LoadDocument(path string, data []byte) (any, error) {
	doc, err := decodeDocument(path, data)
	if err != nil {
		return nil, err
	}
	if err := schema.CheckRawSerializability(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeDocument(path string, data []byte) (any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(data)
	default:
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s as JSON: %w", path, err)
		}
		return doc, nil
	}
}

// decodeYAML decodes YAML bytes and normalizes the result into the same
// nil/bool/float64/string/[]any/map[string]any shape encoding/json would
// have produced: yaml.v3 already yields map[string]interface{} for mappings
// and []interface{} for sequences, but it preserves YAML's native integer
// and int64 types instead of collapsing every number to float64, so a
// normalization pass follows the decode to keep both input formats
// indistinguishable to the compiler and schema checker.
func decodeYAML(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return normalize(raw), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return val
	}
}
