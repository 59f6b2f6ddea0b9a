// Package stackview renders a [uiproject.UiStack] as a reversed commit
// tree, the way [branchtree] renders a branch graph: children first,
// trunk or spinoff root last.
package stackview

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"go.branchstack.dev/bse/internal/ui"
	"go.branchstack.dev/bse/internal/ui/fliptree"
	"go.branchstack.dev/bse/internal/uiproject"
)

// Style defines the visual appearance of a rendered stack.
type Style struct {
	// Subject styles a commit's message subject.
	Subject lipgloss.Style

	// Current styles the marker shown on the checked-out commit.
	Current lipgloss.Style

	// Branch styles a branch name annotation.
	Branch lipgloss.Style

	// Prompting styles a commit that is the head of a pending or
	// in-flight rebase target.
	Prompting lipgloss.Style

	// Idle styles a commit that is a descendant of a prompting commit
	// in the projected stack.
	Idle lipgloss.Style

	// Tree controls the joints and node markers fliptree draws.
	Tree *fliptree.Style[*uiproject.UiCommit]
}

// DefaultStyle is the default style for rendering stacks.
var DefaultStyle = Style{
	Subject:   ui.NewStyle(),
	Current:   ui.NewStyle().Foreground(ui.Yellow).Bold(true).SetString("◀"),
	Branch:    ui.NewStyle().Bold(true).Foreground(ui.Cyan),
	Prompting: ui.NewStyle().Foreground(ui.Magenta).Bold(true),
	Idle:      ui.NewStyle().Faint(true),
	Tree:      fliptree.DefaultStyle[*uiproject.UiCommit](),
}

// Options configures [Write].
type Options struct {
	// Style defines visual styling. If nil, DefaultStyle is used.
	Style *Style
}

// Write renders stack to w. A nil or empty stack renders nothing.
func Write(w io.Writer, stack *uiproject.UiStack, opts *Options) error {
	if stack == nil || len(stack.Commits) == 0 {
		return nil
	}
	if opts == nil {
		opts = &Options{}
	}
	style := opts.Style
	if style == nil {
		style = &DefaultStyle
	}

	b := &builder{index: make(map[*uiproject.UiCommit]int)}
	root := b.link(stack.Commits)

	g := fliptree.Graph[*uiproject.UiCommit]{
		Values: b.values,
		Roots:  []int{root},
		View:   func(c *uiproject.UiCommit) string { return render(c, style) },
		Edges:  func(c *uiproject.UiCommit) []int { return b.children[b.index[c]] },
	}

	return fliptree.Write(w, g, fliptree.Options[*uiproject.UiCommit]{Style: style.Tree})
}

// builder flattens a [uiproject.UiStack]'s lanes and their nested
// spinoffs into the flat value slice and index-keyed edge map
// [fliptree.Graph] expects.
type builder struct {
	values   []*uiproject.UiCommit
	index    map[*uiproject.UiCommit]int
	children map[int][]int
}

func (b *builder) add(c *uiproject.UiCommit) int {
	if b.children == nil {
		b.children = make(map[int][]int)
	}
	idx := len(b.values)
	b.values = append(b.values, c)
	b.index[c] = idx
	return idx
}

// link records every commit in a lane (ordered root to tip, as
// [uiproject] builds them) and wires each commit's child to either the
// next commit in the same lane or, for the tip, nothing. A commit's
// spinoffs are always linked as additional children alongside the
// lane's own continuation, since fliptree draws every edge the same
// way regardless of whether it continues the lane or forks off it. It
// returns the index of the lane's root commit.
func (b *builder) link(commits []*uiproject.UiCommit) int {
	next := -1
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		idx := b.add(c)

		if next >= 0 {
			b.children[idx] = append(b.children[idx], next)
		}
		for _, spinoff := range c.Spinoffs {
			if len(spinoff.Commits) == 0 {
				continue
			}
			b.children[idx] = append(b.children[idx], b.link(spinoff.Commits))
		}

		next = idx
	}
	return next
}

func render(c *uiproject.UiCommit, style *Style) string {
	if c == nil {
		return ""
	}

	var line string
	switch c.RebaseStatus {
	case uiproject.StatusPrompting:
		line = style.Prompting.Render(c.Name)
	case uiproject.StatusIdle:
		line = style.Idle.Render(c.Name)
	default:
		line = style.Subject.Render(c.Name)
	}

	for _, branch := range c.Branches {
		line = style.Branch.Render("("+branch+")") + " " + line
	}
	if c.IsCurrent {
		line = style.Current.String() + " " + line
	}
	return line
}
