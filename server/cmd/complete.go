package cmd

import (
	"strings"
)

// Complete returns tab-completion suggestions for the argument at index of
// args, where args[0] is the sub-command token. At index 0 it lists the names
// and aliases starting with args[0] that actor may see, in registration
// order. At a higher index it asks the Completer of the resolved sub-command,
// passing the arguments after the sub-command token. Complete never panics
// and returns an empty, non-nil slice when there is nothing to suggest.
func (e *Engine) Complete(actor Actor, label string, index int, args []string) []string {
	switch {
	case index < 0:
		return []string{}
	case index == 0:
		prefix := ""
		if len(args) > 0 {
			prefix = strings.ToLower(args[0])
		}
		return e.completeNames(actor, prefix)
	case len(args) == 0:
		return []string{}
	}

	spec, ok := e.reg.Resolve(args[0])
	if !ok || spec.Completer == nil {
		return []string{}
	}
	ctx := Context{Actor: actor, Interactive: actor.Interactive, Args: args[1:], Label: label, Command: spec}
	suggestions := e.suggest(spec, ctx)
	if suggestions == nil {
		return []string{}
	}
	return suggestions
}

// CompleteLine completes a partially typed argument line following the root
// label, such as "plugin en". A trailing space starts a new argument.
func (e *Engine) CompleteLine(actor Actor, label, line string) []string {
	tokens := partialFields(line)
	return e.Complete(actor, label, len(tokens)-1, tokens)
}

func (e *Engine) completeNames(actor Actor, prefix string) []string {
	suggestions := make([]string, 0, 8)
	seen := make(map[string]struct{})
	for _, spec := range e.reg.ListVisible(actor.Permission) {
		for _, token := range spec.Tokens() {
			if _, ok := seen[token]; ok || !strings.HasPrefix(token, prefix) {
				continue
			}
			seen[token] = struct{}{}
			suggestions = append(suggestions, token)
		}
	}
	return suggestions
}

// suggest calls the completer of spec, recovering from a panic.
func (e *Engine) suggest(spec Spec, ctx Context) (suggestions []string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("Sub-command completer panicked.", "command", spec.Name, "panic", r)
			suggestions = nil
		}
	}()
	return spec.Completer(ctx)
}
