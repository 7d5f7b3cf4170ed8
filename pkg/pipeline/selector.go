package pipeline

import (
	"fmt"
	"os"

	"github.com/eaton-lab/kmpy/pkg/project"
)

// SelectorForm is the resolved interpretation of extract selector tokens.
type SelectorForm string

const (
	// SelectorNames selects samples already registered in the manifest.
	SelectorNames SelectorForm = "names"
	// SelectorGroup selects every sample in one filter-stage group.
	SelectorGroup SelectorForm = "group"
	// SelectorPaths treats tokens as ad-hoc read files for this extraction
	// only; they are not registered in the manifest.
	SelectorPaths SelectorForm = "paths"
)

// Selector is the tagged variant resolved from extract's sample arguments.
type Selector struct {
	Form  SelectorForm
	Names []string // SelectorNames
	Group int      // SelectorGroup: 0 or 1
	Paths []string // SelectorPaths
}

// ResolveSelector interprets tokens under a strict precedence: a token
// matching a manifest sample name is always a name; otherwise "0" and "1"
// are group ids; otherwise an existing file path is an ad-hoc file. A token
// that is simultaneously a valid group id and an existing path (and not a
// sample name) is ambiguous. All tokens must resolve to the same form —
// the forms select disjoint execution paths and are never merged.
func ResolveSelector(m *project.Manifest, tokens []string) (*Selector, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("at least one sample, group id, or file required: %w",
			project.ErrInvalid)
	}

	sel := &Selector{Group: -1}
	for _, tok := range tokens {
		form, err := resolveToken(m, tok)
		if err != nil {
			return nil, err
		}
		if sel.Form == "" {
			sel.Form = form
		} else if sel.Form != form {
			return nil, fmt.Errorf(
				"selector mixes %s and %s forms (token %q): %w",
				sel.Form, form, tok, project.ErrInvalid)
		}
		switch form {
		case SelectorNames:
			sel.Names = append(sel.Names, tok)
		case SelectorGroup:
			if sel.Group >= 0 {
				return nil, fmt.Errorf(
					"only one group id may be selected, got %d and %s: %w",
					sel.Group, tok, project.ErrInvalid)
			}
			sel.Group = int(tok[0] - '0')
		case SelectorPaths:
			sel.Paths = append(sel.Paths, tok)
		}
	}
	return sel, nil
}

func resolveToken(m *project.Manifest, tok string) (SelectorForm, error) {
	if _, ok := m.Samples[tok]; ok {
		// sample-name matches always win
		return SelectorNames, nil
	}
	isGroup := tok == "0" || tok == "1"
	isPath := false
	if info, err := os.Stat(tok); err == nil && !info.IsDir() {
		isPath = true
	}
	switch {
	case isGroup && isPath:
		return "", &project.SelectorAmbiguousError{
			Token: tok,
			Forms: []string{string(SelectorGroup), string(SelectorPaths)},
		}
	case isGroup:
		return SelectorGroup, nil
	case isPath:
		return SelectorPaths, nil
	}
	return "", fmt.Errorf(
		"selector %q is not a known sample, group id, or existing file: %w",
		tok, project.ErrInvalid)
}
