package session

import "strings"

// listAssembler rebuilds file names from a bracketed, comma separated list
// that arrives split at arbitrary byte positions.
type listAssembler struct {
	started bool
	closed  bool
	partial strings.Builder
}

// feed consumes one frame of list text and returns the names it completed.
// closed reports whether the closing bracket has been seen.
func (a *listAssembler) feed(chunk []byte) (names []string, closed bool) {
	if a.closed {
		return nil, true
	}

	text := string(chunk)
	if !a.started {
		text = strings.TrimLeft(text, " \x00")
		if text == "" {
			return nil, false
		}
		a.started = true
		text = strings.TrimPrefix(text, "[")
	}

	if i := strings.IndexByte(text, ']'); i >= 0 {
		text = text[:i]
		a.closed = true
	}

	a.partial.WriteString(text)
	buffered := a.partial.String()

	last := strings.LastIndexByte(buffered, ',')
	if last >= 0 {
		names = splitNames(buffered[:last])
		buffered = buffered[last+1:]
	}

	a.partial.Reset()
	if a.closed {
		names = append(names, splitNames(buffered)...)
	} else {
		a.partial.WriteString(buffered)
	}
	return names, a.closed
}

// finish flushes the trailing name of a list that ended without a bracket.
func (a *listAssembler) finish() []string {
	rest := a.partial.String()
	a.partial.Reset()
	a.closed = true
	return splitNames(rest)
}

func splitNames(s string) []string {
	var names []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.Trim(tok, " \x00\r\n")
		if tok != "" {
			names = append(names, tok)
		}
	}
	return names
}
