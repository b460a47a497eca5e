// Package chain implements the declarative per-field rewrite pipeline that
// the interceptor runs over a request or a response: a Chain of Rules, each
// naming a Field, an Action, and an optional Predicate.
package chain

import "strings"

// FieldKind identifies which part of an HTTP message a Field addresses.
type FieldKind int

const (
	FieldKindMethod FieldKind = iota
	FieldKindURI
	FieldKindVersion
	FieldKindHeader
	FieldKindBody
	FieldKindStatus
	FieldKindReason
)

func (k FieldKind) String() string {
	switch k {
	case FieldKindMethod:
		return "method"
	case FieldKindURI:
		return "uri"
	case FieldKindVersion:
		return "version"
	case FieldKindHeader:
		return "header"
	case FieldKindBody:
		return "body"
	case FieldKindStatus:
		return "status"
	case FieldKindReason:
		return "reason"
	default:
		return "unknown"
	}
}

// Field is the tagged-variant address of one part of an HTTP message, as
// described by the Design Notes: Method | Uri | Version | Header(name) |
// Body | Status | Reason. HeaderName is only meaningful when Kind is
// FieldKindHeader.
type Field struct {
	Kind       FieldKind
	HeaderName string
}

func Method() Field  { return Field{Kind: FieldKindMethod} }
func URI() Field     { return Field{Kind: FieldKindURI} }
func Version() Field { return Field{Kind: FieldKindVersion} }
func Body() Field    { return Field{Kind: FieldKindBody} }
func Status() Field  { return Field{Kind: FieldKindStatus} }
func Reason() Field  { return Field{Kind: FieldKindReason} }

// Header addresses a header by name. Header names are matched
// case-insensitively on read. Replace and append write the name in
// net/http's canonical form (e.g. "x-token" becomes "X-Token"); the case
// supplied here is not preserved.
func Header(name string) Field {
	return Field{Kind: FieldKindHeader, HeaderName: name}
}

// String renders the field the way rule descriptions and log lines do:
// "header:User-Agent" or plain "uri".
func (f Field) String() string {
	if f.Kind == FieldKindHeader {
		return "header:" + f.HeaderName
	}
	return f.Kind.String()
}

// Repeatable reports whether append has a distinct meaning for this field
// (headers and body), as opposed to being equivalent to replace.
func (f Field) Repeatable() bool {
	return f.Kind == FieldKindHeader || f.Kind == FieldKindBody
}

func canonicalHeader(name string) string {
	return strings.ToLower(name)
}
