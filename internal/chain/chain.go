package chain

import (
	"log/slog"

	"github.com/samber/lo"
)

// Verdict is the outcome of evaluating a Chain against a Message, per the
// GLOSSARY: accept (proceed with the current message), drop (abort, no
// response), or continue (only produced internally by log/transform while
// the chain is still being walked — Evaluate never returns continue).
type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictDrop
)

func (v Verdict) String() string {
	if v == VerdictDrop {
		return "drop"
	}
	return "accept"
}

// DefaultPolicy is the verdict a Chain falls back to when no rule fires.
type DefaultPolicy int

const (
	DefaultAccept DefaultPolicy = iota
	DefaultDrop
)

func (p DefaultPolicy) Verdict() Verdict {
	if p == DefaultDrop {
		return VerdictDrop
	}
	return VerdictAccept
}

// Chain is an ordered sequence of Rules plus a default policy, evaluated
// top to bottom against a single message field at a time (spec.md §3, §4.3).
type Chain struct {
	Rules   []Rule
	Default DefaultPolicy
}

// New builds a Chain. A nil/empty rule slice combined with DefaultAccept
// is the transparent chain P1 requires.
func New(defaultPolicy DefaultPolicy, rules ...Rule) Chain {
	return Chain{Rules: rules, Default: defaultPolicy}
}

// Summary lists the fields this chain's rules touch, in order, for
// startup diagnostics (so an operator can see at a glance what an
// Interceptor will look at without dumping every rule's parameter).
func (c Chain) Summary() []string {
	return lo.Map(c.Rules, func(r Rule, _ int) string { return r.Field.String() })
}

// Evaluate runs the chain's rules against msg in order, per the algorithm
// in spec.md §4.3. logger receives a debug line when a drop rule fires, an
// info line for each "log" action, and an error line for each rule whose
// replace, append or transform fails; it may be nil.
func (c Chain) Evaluate(msg Message, logger *slog.Logger) Verdict {
	if logger == nil {
		logger = slog.Default()
	}
	for _, rule := range c.Rules {
		value, fires := rule.matches(msg)
		if !fires {
			continue
		}

		switch rule.Action.Kind {
		case ActionAccept:
			return VerdictAccept

		case ActionDrop:
			logger.Debug("chain rule dropped message", "rule", rule.String())
			return VerdictDrop

		case ActionLog:
			logger.Info("chain rule log", "field", rule.Field.String(), "value", value)
			// continue: fall through to next rule

		case ActionReplace:
			if err := msg.Replace(rule.Field, rule.Action.Value); err != nil {
				logger.Error("chain rule replace failed", "rule", rule.String(), "error", err)
				continue
			}
			return VerdictAccept

		case ActionAppend:
			if err := msg.Append(rule.Field, rule.Action.Value); err != nil {
				logger.Error("chain rule append failed", "rule", rule.String(), "error", err)
				continue
			}
			return VerdictAccept

		case ActionRemove:
			msg.Remove(rule.Field)
			return VerdictAccept

		case ActionTransform:
			next, err := rule.Action.Transform(value)
			if err != nil {
				// Chain user error: the rule leaves the field unmodified
				// and evaluation goes on with the next rule, as it does
				// after a transform that succeeds.
				logger.Error("chain transform raised, treating as accept", "rule", rule.String(), "error", err)
				continue
			}
			if err := msg.Replace(rule.Field, next); err != nil {
				logger.Error("chain transform result rejected", "rule", rule.String(), "error", err)
				continue
			}
			// continue: fall through to next rule, re-evaluated from the
			// new value on any later rule targeting the same field.
		}
	}
	return c.Default.Verdict()
}
