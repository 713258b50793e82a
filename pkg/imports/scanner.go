// Package imports resolves dotted import statements to Jac source files on
// disk using layered search rules.
package imports

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Position is a zero-based line/character position in a document.
type Position struct {
	Line      int
	Character int
}

// Location is a zero-based position in a target file, used as a jump target.
type Location struct {
	Path      string
	Line      int
	Character int
}

// Segment is one dotted-path component with its byte span in the source
// line. Spans come from the tokenizer, not from capture-group arithmetic,
// so a click anywhere inside a segment maps to that segment.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Statement is a structured import statement found on (or enclosing) the
// cursor line.
type Statement struct {
	// Prefix is the `from X` module path, empty for plain imports.
	Prefix string

	// Segments are the dotted components of the token under the cursor.
	Segments []Segment
}

// Statement-form detection; the tokenizer below owns all span math.
var (
	importLinePattern = regexp2.MustCompile(`^\s*import\s+`, 0)
	fromLinePattern   = regexp2.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`, 0)
	openParenPattern  = regexp2.MustCompile(`^\s*from\s+([\w.]+)\s+import\s*\($`, 0)
)

// ModulePathAt extracts the dotted module path for the segment under the
// cursor. A click inside a middle segment resolves the path truncated at
// that segment: `import pkg.mod.sub` with the cursor on `mod` yields
// "pkg.mod".
func ModulePathAt(doc string, pos Position) (string, bool) {
	lines := strings.Split(doc, "\n")
	if pos.Line < 0 || pos.Line >= len(lines) {
		return "", false
	}
	line := lines[pos.Line]

	stmt, ok := statementAt(lines, pos.Line, line, pos.Character)
	if !ok {
		return "", false
	}

	segIdx := segmentIndexAt(stmt.Segments, pos.Character)
	if segIdx < 0 {
		return "", false
	}

	parts := make([]string, 0, segIdx+2)
	if stmt.Prefix != "" {
		parts = append(parts, stmt.Prefix)
	}
	for _, seg := range stmt.Segments[:segIdx+1] {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, "."), true
}

// statementAt classifies the statement enclosing the cursor line and
// tokenizes the dotted token under the cursor.
func statementAt(lines []string, lineNo int, line string, col int) (Statement, bool) {
	if match, _ := fromLinePattern.FindStringMatch(line); match != nil {
		prefix := match.GroupByNumber(1).String()
		prefixStart := match.GroupByNumber(1).Index
		prefixEnd := prefixStart + len(prefix)

		// Cursor inside the `from X` module path itself
		if col >= prefixStart && col < prefixEnd {
			return Statement{Segments: tokenizeDotted(line, prefixStart, prefixEnd)}, true
		}

		// Cursor on an imported name after `import`
		segs, ok := dottedTokenAt(line, col)
		if !ok {
			return Statement{}, false
		}
		return Statement{Prefix: prefix, Segments: segs}, true
	}

	if match, _ := importLinePattern.MatchString(line); match {
		segs, ok := dottedTokenAt(line, col)
		if !ok {
			return Statement{}, false
		}
		return Statement{Segments: segs}, true
	}

	// Continuation line of a parenthesized from-import
	if prefix, ok := enclosingFromImport(lines, lineNo); ok {
		segs, tokOK := dottedTokenAt(line, col)
		if !tokOK {
			return Statement{}, false
		}
		return Statement{Prefix: prefix, Segments: segs}, true
	}

	return Statement{}, false
}

// enclosingFromImport walks upward looking for an unclosed
// `from X import (` that the given line continues.
func enclosingFromImport(lines []string, lineNo int) (string, bool) {
	for i := lineNo - 1; i >= 0 && lineNo-i <= 50; i-- {
		line := lines[i]
		if strings.Contains(line, ")") {
			return "", false
		}
		if match, _ := openParenPattern.FindStringMatch(strings.TrimRight(line, " \t")); match != nil {
			return match.GroupByNumber(1).String(), true
		}
		if has, _ := importLinePattern.MatchString(line); has {
			return "", false
		}
	}
	return "", false
}

// dottedTokenAt finds the dotted identifier token containing col and
// splits it into segments with spans.
func dottedTokenAt(line string, col int) ([]Segment, bool) {
	start, end, ok := tokenBounds(line, col)
	if !ok {
		return nil, false
	}
	token := line[start:end]
	if isKeyword(token) {
		return nil, false
	}
	return tokenizeDotted(line, start, end), true
}

// tokenBounds expands from col to the full [A-Za-z0-9_.] token around it
func tokenBounds(line string, col int) (int, int, bool) {
	if col < 0 || col > len(line) {
		return 0, 0, false
	}
	if col == len(line) || !isPathChar(line[col]) {
		// Allow the cursor to sit just past the token's last character
		if col == 0 || !isPathChar(line[col-1]) {
			return 0, 0, false
		}
		col--
	}

	start := col
	for start > 0 && isPathChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isPathChar(line[end]) {
		end++
	}
	if start == end {
		return 0, 0, false
	}
	return start, end, true
}

// tokenizeDotted splits line[start:end] into dot-separated segments with
// absolute spans
func tokenizeDotted(line string, start, end int) []Segment {
	var segs []Segment
	segStart := start
	for i := start; i <= end; i++ {
		if i == end || line[i] == '.' {
			if i > segStart {
				segs = append(segs, Segment{Text: line[segStart:i], Start: segStart, End: i})
			}
			segStart = i + 1
		}
	}
	return segs
}

// segmentIndexAt returns the index of the segment whose span contains col,
// or the last segment when the cursor sits on its trailing boundary.
func segmentIndexAt(segs []Segment, col int) int {
	for i, seg := range segs {
		if col >= seg.Start && col <= seg.End {
			return i
		}
	}
	return -1
}

func isPathChar(c byte) bool {
	return c == '.' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isKeyword(token string) bool {
	switch token {
	case "import", "from", "as":
		return true
	}
	return false
}
