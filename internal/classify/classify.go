// Package classify tags a prompt with the kinds of work it asks for.
package classify

import "regexp"

// Category names one kind of task a prompt may ask for.
type Category string

const (
	Coding    Category = "coding"
	Reasoning Category = "reasoning"
	Memory    Category = "memory"
)

// Categories lists every category in routing order.
var Categories = []Category{Coding, Reasoning, Memory}

// Patterns match anywhere in the text, so "past" also matches "paste".
var (
	codingPattern    = regexp.MustCompile(`(?i)code|script|function|lua|js|roblox`)
	reasoningPattern = regexp.MustCompile(`(?i)explain|logic|think|strategy`)
	memoryPattern    = regexp.MustCompile(`(?i)remember|history|past`)
)

// Classification holds independent flags; any number may be set.
type Classification struct {
	Coding    bool
	Reasoning bool
	Memory    bool
}

// Classify runs each keyword pattern against text.
func Classify(text string) Classification {
	return Classification{
		Coding:    codingPattern.MatchString(text),
		Reasoning: reasoningPattern.MatchString(text),
		Memory:    memoryPattern.MatchString(text),
	}
}

// Has reports whether the category flag is set.
func (c Classification) Has(category Category) bool {
	switch category {
	case Coding:
		return c.Coding
	case Reasoning:
		return c.Reasoning
	case Memory:
		return c.Memory
	default:
		return false
	}
}

// Flags returns the set categories in routing order.
func (c Classification) Flags() []Category {
	flags := make([]Category, 0, len(Categories))
	for _, category := range Categories {
		if c.Has(category) {
			flags = append(flags, category)
		}
	}
	return flags
}
