// Package errs defines the engine's error taxonomy: a single concrete type,
// NodeError, tagged with a Kind and implementing error and Unwrap, so callers
// can use errors.As while still branching on the taxonomy with Kind().
package errs

import "fmt"

// Kind tags an error with its place in the engine's error taxonomy.
type Kind string

const (
	SchemaViolation     Kind = "SCHEMA_VIOLATION"
	LookupFailed        Kind = "LOOKUP_FAILED"
	TypeMismatch        Kind = "TYPE_MISMATCH"
	EvaluationFailed    Kind = "EVALUATION_FAILED"
	TransformerFailed   Kind = "TRANSFORMER_FAILED"
	EffectFailed        Kind = "EFFECT_FAILED"
	SecurityViolation   Kind = "SECURITY_VIOLATION"
	Cancelled           Kind = "CANCELLED"
	EngineMisuse        Kind = "ENGINE_MISUSE"
	SerializationFailed Kind = "SERIALIZATION_FAILED"
)

// NodeError is the engine's generic error carrying a taxonomy Kind, the
// originating node ID (empty if not node-scoped) and a human message.
type NodeError struct {
	K       Kind
	NodeID  string
	Msg     string
	Err     error
	Details any
}

// New constructs a NodeError for the given kind.
func New(k Kind, nodeID, msg string, err error) *NodeError {
	return &NodeError{K: k, NodeID: nodeID, Msg: msg, Err: err}
}

// WithDetails attaches structured detail (e.g. a VALIDATION node's declared
// details payload) and returns the same error for chaining at the call
// site.
func (e *NodeError) WithDetails(details any) *NodeError {
	e.Details = details
	return e
}

func (e *NodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.NodeID != "" {
		return fmt.Sprintf("%s[%s]: %s", e.K, e.NodeID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.K, e.Msg)
}

// Unwrap exposes the underlying error, if any.
func (e *NodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind reports the taxonomy tag.
func (e *NodeError) Kind() Kind {
	if e == nil {
		return ""
	}
	return e.K
}

// Is treats two NodeErrors as equal when their Kind matches, so callers can
// write errors.Is(err, errs.New(errs.Cancelled, "", "", nil)) style checks.
func (e *NodeError) Is(target error) bool {
	other, ok := target.(*NodeError)
	if !ok {
		return false
	}
	return e.K == other.K
}

// KindOf extracts the Kind from err, defaulting to EvaluationFailed when err
// does not carry one of our taxonomy tags.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ne *NodeError
	if as(err, &ne) {
		return ne.K
	}
	return EvaluationFailed
}

// as is a tiny local errors.As to avoid importing errors just for this.
func as(err error, target **NodeError) bool {
	for err != nil {
		if ne, ok := err.(*NodeError); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CompileErrors aggregates SCHEMA_VIOLATION / SERIALIZATION_FAILED issues
// discovered across a whole document so callers see every offending path
// rather than stopping at the first.
type CompileErrors struct {
	Issues []*NodeError
}

func (c *CompileErrors) Error() string {
	if c == nil || len(c.Issues) == 0 {
		return "no compile errors"
	}
	msg := fmt.Sprintf("%d compile error(s): ", len(c.Issues))
	for i, issue := range c.Issues {
		if i > 0 {
			msg += "; "
		}
		msg += issue.Error()
	}
	return msg
}

// Add appends an issue, lazily allocating the slice.
func (c *CompileErrors) Add(issue *NodeError) {
	c.Issues = append(c.Issues, issue)
}

// HasIssues reports whether any issue was recorded.
func (c *CompileErrors) HasIssues() bool {
	return c != nil && len(c.Issues) > 0
}
