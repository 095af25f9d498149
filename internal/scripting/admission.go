package scripting

import (
	"fmt"
	"regexp"
	"strings"
)

// AdmissionError reports a script rejected before execution.
type AdmissionError struct {
	Dialect   string
	Line      int
	Construct string // source line holding the construct
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("%s script rejected: import statement on line %d: %s", e.Dialect, e.Line, e.Construct)
}

// lexicon describes which spans of a language hold no code.
type lexicon struct {
	lineComments  []string
	blockComments [][2]string
	quotes        []string // longest first; "`" and triple quotes may span lines
	longBrackets  bool     // Lua [[...]], [==[...]==] and --[[...]]
}

var (
	pythonLex = lexicon{
		lineComments: []string{"#"},
		quotes:       []string{`"""`, `'''`, `"`, `'`},
	}
	luaLex = lexicon{
		lineComments: []string{"--"},
		quotes:       []string{`"`, `'`},
		longBrackets: true,
	}
	jsLex = lexicon{
		lineComments:  []string{"//"},
		blockComments: [][2]string{{"/*", "*/"}},
		quotes:        []string{"`", `"`, `'`},
	}
)

// blank returns src with every comment and string literal body replaced by
// spaces. Newlines are kept so offsets and line numbers still match src.
func (lx lexicon) blank(src string) string {
	out := []byte(src)
	wipe := func(from, to int) {
		for i := from; i < to && i < len(out); i++ {
			if out[i] != '\n' {
				out[i] = ' '
			}
		}
	}
	i := 0
	for i < len(src) {
		rest := src[i:]

		if lx.longBrackets {
			start := i
			if strings.HasPrefix(rest, "--") {
				start = i + 2
			}
			if level, ok := longOpen(src[start:]); ok {
				end := longClose(src, start+level+2, level)
				wipe(i, end)
				i = end
				continue
			}
		}

		if p, ok := hasAnyPrefix(rest, lx.lineComments); ok {
			end := strings.IndexByte(rest[len(p):], '\n')
			if end < 0 {
				end = len(src)
			} else {
				end = i + len(p) + end
			}
			wipe(i, end)
			i = end
			continue
		}

		matched := false
		for _, bc := range lx.blockComments {
			if strings.HasPrefix(rest, bc[0]) {
				end := strings.Index(src[i+len(bc[0]):], bc[1])
				if end < 0 {
					end = len(src)
				} else {
					end = i + len(bc[0]) + end + len(bc[1])
				}
				wipe(i, end)
				i = end
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		if q, ok := hasAnyPrefix(rest, lx.quotes); ok {
			end := closeQuote(src, i+len(q), q)
			// keep the delimiters so tokens around the literal stay separated
			wipe(i+len(q), end-len(q))
			i = end
			continue
		}
		i++
	}
	return string(out)
}

func hasAnyPrefix(s string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return p, true
		}
	}
	return "", false
}

// closeQuote returns the offset just past the literal that opened with q
// and whose body starts at from. Single-character quotes other than the
// backtick end at a newline when unterminated.
func closeQuote(src string, from int, q string) int {
	multiline := len(q) == 3 || q == "`"
	for i := from; i < len(src); i++ {
		switch {
		case src[i] == '\\':
			i++
		case src[i] == '\n' && !multiline:
			return i
		case strings.HasPrefix(src[i:], q):
			return i + len(q)
		}
	}
	return len(src)
}

// longOpen reports whether s starts with a Lua long bracket "[" "="* "[",
// returning the number of '=' signs.
func longOpen(s string) (int, bool) {
	if len(s) < 2 || s[0] != '[' {
		return 0, false
	}
	n := 0
	for 1+n < len(s) && s[1+n] == '=' {
		n++
	}
	if 1+n < len(s) && s[1+n] == '[' {
		return n, true
	}
	return 0, false
}

// longClose returns the offset just past the "]" "="*level "]" closing a
// long bracket whose body starts at from.
func longClose(src string, from, level int) int {
	closing := "]" + strings.Repeat("=", level) + "]"
	end := strings.Index(src[from:], closing)
	if end < 0 {
		return len(src)
	}
	return from + end + len(closing)
}

// importRule pairs a lexicon with the patterns that mark import-family
// constructs once comments and strings are blanked.
type importRule struct {
	lex      lexicon
	patterns []*regexp.Regexp
}

var (
	pythonImports = importRule{
		lex: pythonLex,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)(?:^|[;:])[ \t]*import\s+[A-Za-z_]`),
			regexp.MustCompile(`(?m)(?:^|[;:])[ \t]*from\s+[A-Za-z_.][\w.]*\s+import\b`),
			regexp.MustCompile(`(?m)(?:^|;)[ \t]*load\s*\(`),
		},
	}
	luaImports = importRule{
		lex: luaLex,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?:^|[^.:\w])(?:require|dofile|loadfile)\b`),
		},
	}
	jsImports = importRule{
		lex: jsLex,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)(?:^|[;{}])[ \t]*import\b[\s{*"'\x60(]`),
			regexp.MustCompile(`(?:^|[^.\w$])import\s*\(`),
			regexp.MustCompile(`(?:^|[^.\w$])require\s*\(`),
			// re-exports load the named module just like an import
			regexp.MustCompile(`(?m)(?:^|[;{}])[ \t]*export\b[^;]*?\bfrom\s*["'\x60]`),
		},
	}
)

// check returns an *AdmissionError for the first import-family construct
// in src, or nil.
func (r importRule) check(dialect, src string) error {
	code := r.lex.blank(src)
	first := -1
	for _, re := range r.patterns {
		if loc := re.FindStringIndex(code); loc != nil && (first < 0 || loc[0] < first) {
			first = loc[0]
		}
	}
	if first < 0 {
		return nil
	}
	// the match may begin on the separator before the keyword
	for first < len(code) && (code[first] == '\n' || code[first] == ';' || code[first] == ':') {
		first++
	}
	line := strings.Count(src[:first], "\n") + 1
	lines := strings.Split(src, "\n")
	return &AdmissionError{
		Dialect:   dialect,
		Line:      line,
		Construct: strings.TrimSpace(lines[line-1]),
	}
}
