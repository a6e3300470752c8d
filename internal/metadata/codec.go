// Package metadata parses and serializes the inline dependency and
// provenance header embedded at the top of a script.
//
// The header is a contiguous block of comment lines:
//
//	# /// script
//	# description = "Fetch the weather"
//	# authors = ["stash"]
//	# created = "2026-08-25"
//	# requires-python = ">=3.9"
//	# dependencies = [
//	#     "requests>=2.25.1",
//	# ]
//	# tags = ["generated"]
//	# ///
//
// The content between the markers is TOML. A script without a header is
// valid and treated as having empty metadata.
package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	openMarker  = "# /// script"
	closeMarker = "# ///"
)

// Header holds the decoded metadata block of a script.
type Header struct {
	Description     string
	Authors         []string
	Created         string
	RequiresRuntime string
	// Dependencies is an ordered list of version-constrained package
	// identifiers. Order is preserved and duplicates are allowed.
	Dependencies []string
	Tags         []string

	// groups preserves the block's original line structure so unknown
	// fields round-trip verbatim. Nil for headers built programmatically.
	groups []group
}

// group is one run of block lines: either a keyed TOML assignment (with
// its continuation lines) or raw filler (blank lines, standalone comments).
type group struct {
	key   string // "" for raw groups
	lines []string
}

// knownKeys are the fields the codec understands. Everything else is
// carried through untouched.
var knownKeys = map[string]bool{
	"description":     true,
	"authors":         true,
	"created":         true,
	"requires-python": true,
	"dependencies":    true,
	"tags":            true,
}

var keyStartRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_.-]*)\s*=`)

// headerFields mirrors the TOML shape of the block.
type headerFields struct {
	Description     string   `toml:"description"`
	Authors         []string `toml:"authors"`
	Created         string   `toml:"created"`
	RequiresRuntime string   `toml:"requires-python"`
	Dependencies    []string `toml:"dependencies"`
	Tags            []string `toml:"tags"`
}

// Decode scans text for a metadata block at the top of the file. It
// returns the header and the remaining body. Malformed blocks fail closed:
// the header is nil and the text is returned unchanged, so callers can log
// and continue rather than abort.
func Decode(text string) (*Header, string) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t\r") != openMarker {
		return nil, text
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		trimmed := strings.TrimRight(lines[i], " \t\r")
		if trimmed == closeMarker {
			closeIdx = i
			break
		}
		if !strings.HasPrefix(trimmed, "#") && trimmed != "" {
			// Block interrupted by a non-comment line: not a valid header.
			return nil, text
		}
	}
	if closeIdx < 0 {
		return nil, text
	}

	content := make([]string, 0, closeIdx-1)
	for _, line := range lines[1:closeIdx] {
		content = append(content, stripCommentPrefix(line))
	}

	groups, ok := splitGroups(content)
	if !ok {
		return nil, text
	}

	var fields headerFields
	if _, err := toml.Decode(strings.Join(content, "\n"), &fields); err != nil {
		return nil, text
	}

	h := &Header{
		Description:     fields.Description,
		Authors:         fields.Authors,
		Created:         fields.Created,
		RequiresRuntime: fields.RequiresRuntime,
		Dependencies:    fields.Dependencies,
		Tags:            fields.Tags,
		groups:          groups,
	}

	body := strings.Join(lines[closeIdx+1:], "\n")
	// Encode places exactly one blank line between block and body; strip it.
	body = strings.TrimPrefix(body, "\n")
	return h, body
}

// Encode renders the header block followed by exactly one blank line and
// the body. Known fields are rendered canonically; unknown fields captured
// at decode time are emitted verbatim in their original position.
func Encode(h *Header, body string) string {
	var b strings.Builder
	b.WriteString(openMarker)
	b.WriteString("\n")

	if h != nil {
		for _, line := range h.renderContent() {
			if line == "" {
				b.WriteString("#\n")
			} else {
				b.WriteString("# ")
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString(closeMarker)
	b.WriteString("\n\n")
	b.WriteString(body)
	return b.String()
}

// renderContent produces the stripped content lines of the block.
func (h *Header) renderContent() []string {
	if h.groups == nil {
		return h.renderCanonical()
	}
	var out []string
	for _, g := range h.groups {
		// Keyed groups whose parsed value still matches the header are
		// emitted verbatim, so comments nested inside a value survive the
		// round trip. Canonical re-rendering is only for mutated fields.
		if g.key == "" || !knownKeys[g.key] || h.fieldUnchanged(g) {
			out = append(out, g.lines...)
			continue
		}
		out = append(out, h.renderField(g.key)...)
	}
	return out
}

// fieldUnchanged reports whether a keyed group's original lines still
// parse to the header's current value for that key.
func (h *Header) fieldUnchanged(g group) bool {
	var fields headerFields
	if _, err := toml.Decode(strings.Join(g.lines, "\n"), &fields); err != nil {
		return false
	}
	switch g.key {
	case "description":
		return fields.Description == h.Description
	case "authors":
		return stringsEqual(fields.Authors, h.Authors)
	case "created":
		return fields.Created == h.Created
	case "requires-python":
		return fields.RequiresRuntime == h.RequiresRuntime
	case "dependencies":
		return stringsEqual(fields.Dependencies, h.Dependencies)
	case "tags":
		return stringsEqual(fields.Tags, h.Tags)
	}
	return false
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// renderCanonical renders all known non-empty fields in a fixed order.
// Dependencies are always present so readers can tell "no dependencies"
// from "no metadata".
func (h *Header) renderCanonical() []string {
	var out []string
	if h.Description != "" {
		out = append(out, h.renderField("description")...)
	}
	if len(h.Authors) > 0 {
		out = append(out, h.renderField("authors")...)
	}
	if h.Created != "" {
		out = append(out, h.renderField("created")...)
	}
	if h.RequiresRuntime != "" {
		out = append(out, h.renderField("requires-python")...)
	}
	out = append(out, h.renderField("dependencies")...)
	if len(h.Tags) > 0 {
		out = append(out, h.renderField("tags")...)
	}
	return out
}

func (h *Header) renderField(key string) []string {
	switch key {
	case "description":
		return []string{fmt.Sprintf("description = %s", strconv.Quote(h.Description))}
	case "authors":
		return []string{fmt.Sprintf("authors = %s", inlineList(h.Authors))}
	case "created":
		return []string{fmt.Sprintf("created = %s", strconv.Quote(h.Created))}
	case "requires-python":
		return []string{fmt.Sprintf("requires-python = %s", strconv.Quote(h.RequiresRuntime))}
	case "dependencies":
		if len(h.Dependencies) == 0 {
			return []string{"dependencies = []"}
		}
		out := []string{"dependencies = ["}
		for _, dep := range h.Dependencies {
			out = append(out, fmt.Sprintf("    %s,", strconv.Quote(dep)))
		}
		return append(out, "]")
	case "tags":
		return []string{fmt.Sprintf("tags = %s", inlineList(h.Tags))}
	}
	return nil
}

func inlineList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// stripCommentPrefix removes the leading "# " (or bare "#") from a block
// line, leaving the TOML content.
func stripCommentPrefix(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if strings.HasPrefix(line, "# ") {
		return line[2:]
	}
	if line == "#" || line == "" {
		return ""
	}
	if strings.HasPrefix(line, "#") {
		return line[1:]
	}
	return line
}

// splitGroups partitions stripped content lines into keyed and raw groups.
// Continuation lines of a multi-line value (an open bracket) stay with
// their key. Returns ok=false on structurally broken content such as a
// continuation line with no open assignment.
func splitGroups(content []string) ([]group, bool) {
	var groups []group
	depth := 0
	current := -1 // index into groups of the open keyed group

	for _, line := range content {
		trimmed := strings.TrimSpace(line)
		if depth > 0 {
			if current < 0 {
				return nil, false
			}
			groups[current].lines = append(groups[current].lines, line)
			depth += bracketDelta(line)
			if depth < 0 {
				return nil, false
			}
			continue
		}
		if m := keyStartRe.FindStringSubmatch(trimmed); m != nil {
			groups = append(groups, group{key: m[1], lines: []string{line}})
			current = len(groups) - 1
			depth = bracketDelta(line)
			if depth < 0 {
				return nil, false
			}
			continue
		}
		// Raw filler: blank line or standalone comment.
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			return nil, false
		}
		if n := len(groups); n > 0 && groups[n-1].key == "" {
			groups[n-1].lines = append(groups[n-1].lines, line)
		} else {
			groups = append(groups, group{lines: []string{line}})
		}
		current = -1
	}
	if depth != 0 {
		return nil, false
	}
	return groups, true
}

// bracketDelta counts net unquoted square brackets on a line, ignoring
// anything after a comment marker.
func bracketDelta(line string) int {
	delta := 0
	inString := false
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '#':
			return delta
		case '[':
			delta++
		case ']':
			delta--
		}
	}
	return delta
}
