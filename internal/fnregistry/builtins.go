package fnregistry

import (
	"context"
	"fmt"
	"strings"
)

// init seeds the default registry with the small set of condition and
// transformer functions every journey can rely on without authoring its
// own FUNCTION package. Effects are deliberately left to the embedding
// application: side effects are domain-specific, pure predicates and
// transformers are not.
func init() {
	must(Register(Entry{Name: "equals", Type: Condition, Arity: 2, Fn: ConditionFunc(equals)}))
	must(Register(Entry{Name: "notEmpty", Type: Condition, Arity: 1, Fn: ConditionFunc(notEmpty)}))
	must(Register(Entry{Name: "greaterThan", Type: Condition, Arity: 2, Fn: ConditionFunc(greaterThan)}))
	must(Register(Entry{Name: "oneOf", Type: Condition, Arity: -1, Fn: ConditionFunc(oneOf)}))

	must(Register(Entry{Name: "trim", Type: Transformer, Arity: 1, Fn: TransformerFunc(trim)}))
	must(Register(Entry{Name: "upper", Type: Transformer, Arity: 1, Fn: TransformerFunc(upper)}))
	must(Register(Entry{Name: "lower", Type: Transformer, Arity: 1, Fn: TransformerFunc(lower)}))
	must(Register(Entry{Name: "defaultTo", Type: Transformer, Arity: 2, Fn: TransformerFunc(defaultTo)}))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func equals(_ context.Context, args []any) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("equals requires exactly 2 arguments, got %d", len(args))
	}
	return fmt.Sprint(args[0]) == fmt.Sprint(args[1]), nil
}

func notEmpty(_ context.Context, args []any) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("notEmpty requires exactly 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case nil:
		return false, nil
	case string:
		return strings.TrimSpace(v) != "", nil
	case []any:
		return len(v) > 0, nil
	default:
		return true, nil
	}
}

func greaterThan(_ context.Context, args []any) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("greaterThan requires exactly 2 arguments, got %d", len(args))
	}
	a, aok := toFloat(args[0])
	b, bok := toFloat(args[1])
	if !aok || !bok {
		return false, fmt.Errorf("greaterThan requires numeric arguments")
	}
	return a > b, nil
}

func oneOf(_ context.Context, args []any) (bool, error) {
	if len(args) < 1 {
		return false, fmt.Errorf("oneOf requires a subject and at least one candidate")
	}
	subject := fmt.Sprint(args[0])
	for _, candidate := range args[1:] {
		if fmt.Sprint(candidate) == subject {
			return true, nil
		}
	}
	return false, nil
}

func trim(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("trim requires exactly 1 argument, got %d", len(args))
	}
	s, _ := args[0].(string)
	return strings.TrimSpace(s), nil
}

func upper(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("upper requires exactly 1 argument, got %d", len(args))
	}
	s, _ := args[0].(string)
	return strings.ToUpper(s), nil
}

func lower(_ context.Context, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("lower requires exactly 1 argument, got %d", len(args))
	}
	s, _ := args[0].(string)
	return strings.ToLower(s), nil
}

func defaultTo(_ context.Context, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("defaultTo requires exactly 2 arguments, got %d", len(args))
	}
	if args[0] == nil {
		return args[1], nil
	}
	if s, ok := args[0].(string); ok && s == "" {
		return args[1], nil
	}
	return args[0], nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
