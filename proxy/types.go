package proxy

import "github.com/wdproxy/mitmproxy/internal/chain"

// Re-exported so embedders build rule chains against the proxy package
// directly, without importing internal/chain themselves — the same
// type-alias pattern the teacher's proxy/types.go uses to re-export
// internal/types.Flow etc. as proxy.Flow.
type (
	Field         = chain.Field
	Message       = chain.Message
	Request       = chain.Request
	Response      = chain.Response
	Action        = chain.Action
	TransformFunc = chain.TransformFunc
	Predicate     = chain.Predicate
	Rule          = chain.Rule
	Chain         = chain.Chain
	Verdict       = chain.Verdict
	DefaultPolicy = chain.DefaultPolicy
)

var (
	Method = chain.Method
	URI    = chain.URI
	Version = chain.Version
	Header  = chain.Header
	Body    = chain.Body
	Status  = chain.Status
	Reason  = chain.Reason

	Accept    = chain.Accept
	Drop      = chain.Drop
	Log       = chain.Log
	Replace   = chain.Replace
	Append    = chain.Append
	Remove    = chain.Remove
	Transform = chain.Transform

	Glob     = chain.Glob
	Equals   = chain.Equals
	Contains = chain.Contains

	NewChain = chain.New
)

const (
	VerdictAccept = chain.VerdictAccept
	VerdictDrop   = chain.VerdictDrop

	DefaultAccept = chain.DefaultAccept
	DefaultDrop   = chain.DefaultDrop
)

// Interceptor bundles a request chain and a response chain, immutable
// after construction (spec.md §3).
type Interceptor struct {
	RequestChain  Chain
	ResponseChain Chain
}

// NewInterceptor builds an Interceptor from its two chains.
func NewInterceptor(request, response Chain) *Interceptor {
	return &Interceptor{RequestChain: request, ResponseChain: response}
}
