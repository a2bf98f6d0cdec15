package shell

import "strings"

// formatSchema puts items of the first parenthesized list, e.g. column definitions, on separate
// lines. Single item lists and statements already spanning several lines are returned as is.
func formatSchema(sql string) string {
	if strings.Contains(sql, "\n") {
		return sql
	}
	toks := tokenize(sql)

	openIdx, closeIdx, items := -1, -1, 1
	depth := 0
	for i, t := range toks {
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(":
			depth++
			if openIdx < 0 {
				openIdx = i
			}
		case ")":
			depth--
			if depth == 0 && openIdx >= 0 && closeIdx < 0 {
				closeIdx = i
			}
		case ",":
			if depth == 1 && closeIdx < 0 {
				items++
			}
		}
	}
	if openIdx < 0 || closeIdx < 0 || items < 2 {
		return sql
	}

	var b strings.Builder
	skipSpace := false
	depth = 0
	for i, t := range toks {
		if skipSpace && t.kind == tokSpace {
			continue
		}
		skipSpace = false
		switch {
		case i == openIdx:
			b.WriteString("(\n  ")
			skipSpace = true
			depth++
			continue
		case i == closeIdx:
			b.WriteString("\n)")
			depth--
			continue
		case i > openIdx && i < closeIdx && t.kind == tokPunct && t.text == "(":
			depth++
		case i > openIdx && i < closeIdx && t.kind == tokPunct && t.text == ")":
			depth--
		case i > openIdx && i < closeIdx && t.kind == tokPunct && t.text == "," && depth == 1:
			b.WriteString(",\n  ")
			skipSpace = true
			continue
		case i+1 == closeIdx && t.kind == tokSpace:
			continue
		}
		b.WriteString(t.text)
	}
	return b.String()
}
