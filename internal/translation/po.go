package translation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("string is not valid UTF-8")

// PO entries carry the module in an extracted comment ("#. module: base")
// and one reference per resource ("#: model:res.partner,name:base.partner_root").
// A single msgid may carry several references; each becomes one Term.

type poEntry struct {
	module string
	refs   []string
	msgid  string
	msgstr string
}

func writePO(w io.Writer, lang string, terms []Term, template bool) error {
	bw := bufio.NewWriter(w)

	modules := map[string]bool{}
	for _, t := range terms {
		modules[t.Module] = true
	}
	names := make([]string, 0, len(modules))
	for m := range modules {
		names = append(names, m)
	}
	sort.Strings(names)

	fmt.Fprintf(bw, "# Translation of erpserver.\n")
	fmt.Fprintf(bw, "# This file contains the translation of the following modules:\n")
	for _, m := range names {
		fmt.Fprintf(bw, "#\t* %s\n", m)
	}
	fmt.Fprintf(bw, "#\n")
	fmt.Fprintf(bw, "msgid \"\"\nmsgstr \"\"\n")
	fmt.Fprintf(bw, "\"Project-Id-Version: erpserver\\n\"\n")
	if !template {
		fmt.Fprintf(bw, "\"Language: %s\\n\"\n", poEscape(lang))
	}
	fmt.Fprintf(bw, "\"MIME-Version: 1.0\\n\"\n")
	fmt.Fprintf(bw, "\"Content-Type: text/plain; charset=UTF-8\\n\"\n")
	fmt.Fprintf(bw, "\"Content-Transfer-Encoding: \\n\"\n")
	fmt.Fprintf(bw, "\"Plural-Forms: \\n\"\n")

	for _, e := range groupEntries(terms) {
		bw.WriteString("\n")
		fmt.Fprintf(bw, "#. module: %s\n", e.module)
		for _, ref := range e.refs {
			fmt.Fprintf(bw, "#: %s\n", ref)
		}
		writePOString(bw, "msgid", e.msgid)
		if template {
			writePOString(bw, "msgstr", "")
		} else {
			writePOString(bw, "msgstr", e.msgstr)
		}
	}
	return bw.Flush()
}

// groupEntries merges terms sharing module and source into one entry,
// keeping first-seen order.
func groupEntries(terms []Term) []*poEntry {
	var entries []*poEntry
	byKey := map[string]*poEntry{}
	for _, t := range terms {
		key := t.Module + "\x00" + t.Src
		e, ok := byKey[key]
		if !ok {
			e = &poEntry{module: t.Module, msgid: t.Src, msgstr: t.Value}
			byKey[key] = e
			entries = append(entries, e)
		}
		if e.msgstr == "" {
			e.msgstr = t.Value
		}
		e.refs = append(e.refs, fmt.Sprintf("%s:%s:%s", t.Type, t.Name, t.ResRef()))
	}
	return entries
}

func writePOString(w *bufio.Writer, keyword, s string) {
	if !strings.Contains(strings.TrimSuffix(s, "\n"), "\n") {
		fmt.Fprintf(w, "%s \"%s\"\n", keyword, poEscape(s))
		return
	}
	fmt.Fprintf(w, "%s \"\"\n", keyword)
	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" {
			continue
		}
		fmt.Fprintf(w, "\"%s\"\n", poEscape(line))
	}
}

var poEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\t", `\t`,
	"\r", `\r`,
)

func poEscape(s string) string {
	return poEscaper.Replace(s)
}

func poUnquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("malformed string %s", s)
	}
	if !utf8.ValidString(s) {
		return "", errInvalidUTF8
	}
	u, err := strconv.Unquote(s)
	if err != nil {
		return "", err
	}
	if !utf8.ValidString(u) {
		return "", errInvalidUTF8
	}
	return u, nil
}

func readPO(r io.Reader) ([]Term, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		terms []Term
		cur   poEntry
		field *string // string currently receiving continuation lines
		seen  bool    // cur has a msgid
	)

	flush := func() {
		if seen && cur.msgid != "" {
			terms = append(terms, entryTerms(cur)...)
		}
		cur = poEntry{}
		field = nil
		seen = false
	}

	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())

		switch {
		case line == "":
			flush()

		case strings.HasPrefix(line, "#~"):
			// obsolete entry

		case strings.HasPrefix(line, "#."):
			if seen {
				flush()
			}
			text := strings.TrimSpace(line[2:])
			if m, ok := strings.CutPrefix(text, "module:"); ok {
				cur.module = strings.TrimSpace(m)
			}

		case strings.HasPrefix(line, "#:"):
			if seen {
				flush()
			}
			cur.refs = append(cur.refs, strings.Fields(line[2:])...)

		case strings.HasPrefix(line, "#"):
			// translator comments and flags

		case strings.HasPrefix(line, "msgid "):
			if seen {
				flush()
			}
			s, err := poUnquote(line[len("msgid "):])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cur.msgid = s
			field = &cur.msgid
			seen = true

		case strings.HasPrefix(line, "msgstr "):
			s, err := poUnquote(line[len("msgstr "):])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cur.msgstr = s
			field = &cur.msgstr

		case strings.HasPrefix(line, `"`):
			if field == nil {
				return nil, fmt.Errorf("line %d: continuation outside msgid/msgstr", lineNo)
			}
			s, err := poUnquote(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			*field += s

		default:
			return nil, fmt.Errorf("line %d: unexpected %q", lineNo, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return terms, nil
}

// entryTerms expands an entry into one term per reference.
func entryTerms(e poEntry) []Term {
	if len(e.refs) == 0 {
		return []Term{{Module: e.module, Type: "code", Src: e.msgid, Value: e.msgstr}}
	}
	terms := make([]Term, 0, len(e.refs))
	for _, ref := range e.refs {
		t := Term{Module: e.module, Src: e.msgid, Value: e.msgstr}
		typ, rest, ok := strings.Cut(ref, ":")
		if !ok {
			t.Type = "code"
			t.Name = ref
		} else {
			t.Type = typ
			if i := strings.LastIndexByte(rest, ':'); i >= 0 {
				t.Name = rest[:i]
				t.setResRef(rest[i+1:])
			} else {
				t.Name = rest
			}
		}
		terms = append(terms, t)
	}
	return terms
}
