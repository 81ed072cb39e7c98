// Package schema validates an author's journey JSON before it reaches the
// AST compiler (shape and leaf-value checks) and checks the compiled
// dependency graph for cycles afterward (serializability). Splitting the
// two halves this way means the compiler itself never has to reject
// malformed input — by the time ast.Compile runs, the document is already
// known-shaped.
package schema

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/relayform/journeyengine/internal/depgraph"
	"github.com/relayform/journeyengine/pkg/errs"
)

var validate = validator.New()

// CheckDocument validates a decoded journey document's shape: each node it
// visits carries its required fields and a discriminator this engine
// recognizes. It descends into journey steps/onAccess/children, step
// blocks/onAccess/onAction/onSubmission, field validate lists, And/Or/Xor
// operands and transition effects/next lists; it does not descend into
// other properties (predicate, condition, subject, operand, input,
// arguments, when, defaultValue, onValid/onInvalid/onAlways, ...).
func CheckDocument(doc any) *errs.CompileErrors {
	issues := &errs.CompileErrors{}
	checkNode(doc, "$", issues)
	return issues
}

func checkNode(raw any, path string, issues *errs.CompileErrors) {
	m, ok := raw.(map[string]any)
	if !ok {
		issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: expected an object, got %T", path, raw), nil))
		return
	}

	switch {
	case hasString(m, "type", "journey"):
		requireNonEmptyString(m, "code", path, issues)
		requireNonEmptyString(m, "title", path, issues)
		requireArray(m, "steps", path, issues, checkNode)
		optionalArray(m, "onAccess", path, issues, checkNode)
		optionalArray(m, "children", path, issues, checkNode)

	case hasString(m, "type", "step"):
		requireNonEmptyString(m, "path", path, issues)
		optionalArray(m, "blocks", path, issues, checkNode)
		optionalArray(m, "onAccess", path, issues, checkNode)
		optionalArray(m, "onAction", path, issues, checkNode)
		if v, ok := m["onSubmission"]; ok {
			checkNode(v, path+".onSubmission", issues)
		}

	case hasString(m, "type", "block"):
		blockType, _ := m["blockType"].(string)
		if err := validate.Var(blockType, "required,oneof=field basic"); err != nil {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: blockType must be 'field' or 'basic'", path), err))
		}
		if blockType == "field" {
			requireNonEmptyString(m, "code", path, issues)
			optionalArray(m, "validate", path, issues, checkNode)
		}

	case hasString(m, "type", "Reference"):
		path2, ok := m["path"].([]any)
		if !ok || len(path2) == 0 {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Reference requires a non-empty path array", path), nil))
		}

	case hasString(m, "type", "Format"):
		requireNonEmptyString(m, "template", path, issues)

	case hasString(m, "type", "Pipeline"):
		if _, ok := m["input"]; !ok {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Pipeline requires input", path), nil))
		}

	case hasString(m, "type", "Function"):
		requireNonEmptyString(m, "name", path, issues)
		ft, _ := m["FunctionType"].(string)
		if err := validate.Var(ft, "required,oneof=Condition Transformer Effect"); err != nil {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: FunctionType must be Condition, Transformer, or Effect", path), err))
		}

	case hasString(m, "type", "Conditional"):
		if _, ok := m["predicate"]; !ok {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Conditional requires predicate", path), nil))
		}

	case hasString(m, "type", "Validation"):
		if _, ok := m["condition"]; !ok {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Validation requires condition", path), nil))
		}

	case hasString(m, "type", "Iterate"):
		if _, ok := m["input"]; !ok {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Iterate requires input", path), nil))
		}
		mode, _ := m["mode"].(string)
		if err := validate.Var(mode, "required,oneof=MAP FILTER FIND"); err != nil {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Iterate mode must be MAP, FILTER, or FIND", path), err))
		}

	case hasString(m, "type", "Next"):
		// no required fields: when, goto and error are all optional.

	case m["LogicType"] == "Test":
		if _, ok := m["subject"]; !ok {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Test requires subject", path), nil))
		}
		if _, ok := m["condition"]; !ok {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Test requires condition", path), nil))
		}

	case m["LogicType"] == "Not":
		if _, ok := m["operand"]; !ok {
			issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: Not requires operand", path), nil))
		}

	case m["LogicType"] == "And" || m["LogicType"] == "Or" || m["LogicType"] == "Xor":
		optionalArray(m, "operands", path, issues, checkNode)

	case m["TransitionType"] == "Access" || m["TransitionType"] == "Action" || m["TransitionType"] == "Submit":
		optionalArray(m, "effects", path, issues, checkNode)
		optionalArray(m, "next", path, issues, checkNode)

	default:
		issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s: object has no recognized discriminator", path), nil))
	}
}

func hasString(m map[string]any, key, want string) bool {
	v, _ := m[key].(string)
	return v == want
}

func requireNonEmptyString(m map[string]any, key, path string, issues *errs.CompileErrors) {
	v, _ := m[key].(string)
	if err := validate.Var(v, "required,min=1"); err != nil {
		issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s.%s: required non-empty string", path, key), err))
	}
}

type nodeChecker func(raw any, path string, issues *errs.CompileErrors)

func requireArray(m map[string]any, key, path string, issues *errs.CompileErrors, check nodeChecker) {
	raw, ok := m[key]
	if !ok {
		issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s.%s: required array is missing", path, key), nil))
		return
	}
	optionalArray(m, key, path, issues, check)
	_ = raw
}

func optionalArray(m map[string]any, key, path string, issues *errs.CompileErrors, check nodeChecker) {
	raw, ok := m[key]
	if !ok {
		return
	}
	arr, ok := raw.([]any)
	if !ok {
		issues.Add(errs.New(errs.SchemaViolation, "", fmt.Sprintf("%s.%s: expected an array", path, key), nil))
		return
	}
	for i, item := range arr {
		check(item, fmt.Sprintf("%s.%s[%d]", path, key, i), issues)
	}
}

// CheckSerializability rejects a compiled dependency graph containing a
// cycle. Under normal operation CheckDocument plus the compiler's own
// per-kind required-field checks make a cyclic graph unreachable (a
// REFERENCE can only target a pseudo node, never another expression node
// directly), but the check is cheap and catches any future expression kind
// that introduces a non-pseudo back-edge.
func CheckSerializability(g *depgraph.Graph) error {
	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}
	return nil
}

// CheckRawSerializability walks a decoded-or-constructed journey document
// before it reaches CheckDocument/ast.Compile and rejects anything spec.md
// §6's serializability contract forbids: functions, channels, complex
// numbers, any type other than the plain JSON leaves, and a map/slice that
// contains itself. A document produced by encoding/json.Unmarshal into `any`
// can never actually contain the first class of problem (the decoder only
// ever produces nil/bool/float64/string/[]any/map[string]any), but callers
// that build or transcode a document by hand — the YAML journey-authoring
// path in particular — can hand back arbitrary Go values, so the check
// still earns its keep there.
func CheckRawSerializability(doc any) error {
	return checkSerializable(doc, "$", map[uintptr]bool{})
}

func checkSerializable(v any, path string, seen map[uintptr]bool) error {
	switch val := v.(type) {
	case nil, bool, string, float64, int, int64:
		return nil
	case []any:
		ptr := sliceIdentity(val)
		if ptr != 0 {
			if seen[ptr] {
				return errs.New(errs.SerializationFailed, "", fmt.Sprintf("%s: circular reference", path), nil)
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		for i, item := range val {
			if err := checkSerializable(item, fmt.Sprintf("%s[%d]", path, i), seen); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		ptr := mapIdentity(val)
		if seen[ptr] {
			return errs.New(errs.SerializationFailed, "", fmt.Sprintf("%s: circular reference", path), nil)
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		for k, item := range val {
			if err := checkSerializable(item, path+"."+k, seen); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.New(errs.SerializationFailed, "", fmt.Sprintf("%s: unsupported value of type %T", path, v), nil)
	}
}

// sliceIdentity returns the backing array's address, used as the visited-set
// key for cycle detection; a nil slice has no identity worth tracking.
func sliceIdentity(s []any) uintptr {
	if s == nil {
		return 0
	}
	return reflect.ValueOf(s).Pointer()
}

// mapIdentity returns the map's header address for the same purpose.
func mapIdentity(m map[string]any) uintptr {
	return reflect.ValueOf(m).Pointer()
}
