/*
Package prompt builds the exact prompt text sent to the completion API for
each of the three services. Prompts are assembled from an ordered list of
sections so block ordering and omission of absent context are enforced by
construction rather than by hand-spliced strings.
*/
package prompt

import "strings"

// Builder collects prompt sections in order. Optional sections are skipped
// when their context is absent; order is fixed by the call sequence.
type Builder struct {
	sections []string
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Section appends an unconditional block.
func (b *Builder) Section(text string) *Builder {
	b.sections = append(b.sections, text)
	return b
}

// Optional appends the block only when present is true.
func (b *Builder) Optional(present bool, text string) *Builder {
	if present {
		b.sections = append(b.sections, text)
	}
	return b
}

// Build joins the collected sections with newlines.
func (b *Builder) Build() string {
	return strings.Join(b.sections, "\n")
}
