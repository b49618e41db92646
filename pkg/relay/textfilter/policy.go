// Copyright 2024-2026 Aiku AI

// Package textfilter implements the text-admission policies applied to
// message text before forwarding. Two policies exist: Transform rewrites
// text by removing or replacing configured substrings and patterns, and
// Keywords admits only messages containing at least one configured keyword.
// A rule is configured with exactly one policy.
package textfilter

// Decision is the outcome of applying a policy to message text.
type Decision struct {
	// Admit reports whether the message may be forwarded at all.
	Admit bool
	// Rewritten is the text to forward. Policies that do not rewrite
	// return the input unchanged.
	Rewritten string
}

// Policy decides whether a message's text is admitted and how it is
// rewritten. Implementations must be safe for concurrent use after
// construction and deterministic for a fixed rule set.
type Policy interface {
	Decide(text string) Decision
}
