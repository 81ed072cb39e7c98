package ast

// PseudoKind names the external input a pseudo node stands in for.
type PseudoKind string

const (
	PseudoAnswer      PseudoKind = "ANSWER"
	PseudoData        PseudoKind = "DATA"
	PseudoQuery       PseudoKind = "QUERY"
	PseudoParams      PseudoKind = "PARAMS"
	PseudoPost        PseudoKind = "POST"
	PseudoAnswerLocal PseudoKind = "ANSWER_LOCAL"
)

// ReferenceType is the path[0] discriminator on a REFERENCE node; it maps
// 1:1 onto a PseudoKind except that "answers" resolves to PseudoAnswer (the
// global mutation history) while the active step's own field uses the
// ANSWER_LOCAL variant, selected by the REFERENCE handler at evaluation time
// rather than by the author.
type ReferenceType string

const (
	RefAnswers ReferenceType = "answers"
	RefData    ReferenceType = "data"
	RefQuery   ReferenceType = "query"
	RefParams  ReferenceType = "params"
	RefPost    ReferenceType = "post"
)

// referenceToPseudo maps a REFERENCE path's refType to the PseudoKind whose
// node it depends on, per invariant 5 in spec.md §3.
var referenceToPseudo = map[ReferenceType]PseudoKind{
	RefAnswers: PseudoAnswer,
	RefData:    PseudoData,
	RefQuery:   PseudoQuery,
	RefParams:  PseudoParams,
	RefPost:    PseudoPost,
}

// PseudoForReferenceType reports which PseudoKind a REFERENCE path's refType
// resolves to, and whether refType is one of the five recognized kinds.
func PseudoForReferenceType(refType string) (PseudoKind, bool) {
	k, ok := referenceToPseudo[ReferenceType(refType)]
	return k, ok
}

// PseudoKey identifies a pseudo node by its kind and external key; pseudo
// registration coalesces duplicates on this pair.
type PseudoKey struct {
	Kind PseudoKind
	Key  string
}

// PseudoNode is a synthetic node standing in for external input: it never
// appears in the author JSON and carries no Props, only the key the engine
// uses to resolve it against the request shell or answer store at
// evaluation time.
type PseudoNode struct {
	ID  ID
	Key PseudoKey
}
