package observe

import "strings"

// Predicate is one clause of the filter grammar `pname[*][:beg[..end]]`,
// adapted from the teacher project's query-string splitter
// (internal/http10.ParseQuery) generalized from plain key=value pairs
// to this richer range syntax.
type Predicate struct {
	Name        string
	AllowAbsent bool // trailing '*': pass the item if the property is absent
	HasRange    bool // a ':' was present at all
	Begin       string
	HasEnd      bool
	End         string
}

// ParsePredicates splits raw on '|' and parses each clause. Predicates
// combine with AND (Match below is applied to every one).
func ParsePredicates(raw string) []Predicate {
	if raw == "" {
		return nil
	}
	var preds []Predicate
	for _, clause := range strings.Split(raw, "|") {
		if clause == "" {
			continue
		}
		preds = append(preds, parseOne(clause))
	}
	return preds
}

func parseOne(clause string) Predicate {
	var p Predicate
	s := clause
	if i := strings.IndexByte(s, ':'); i >= 0 {
		p.HasRange = true
		rangePart := s[i+1:]
		s = s[:i]
		if j := strings.Index(rangePart, ".."); j >= 0 {
			p.Begin = rangePart[:j]
			p.End = rangePart[j+2:]
			p.HasEnd = true
		} else {
			p.Begin = rangePart
		}
	}
	if strings.HasSuffix(s, "*") {
		p.AllowAbsent = true
		s = strings.TrimSuffix(s, "*")
	}
	p.Name = s
	return p
}

// Match reports whether e satisfies p.
func (p Predicate) Match(e Entry) bool {
	num, isNum, str, present := e.attr(p.Name)
	if !present {
		return p.AllowAbsent
	}
	if !p.HasRange {
		// Range fully omitted: "any non-null value" — presence alone
		// is enough, already established above.
		return true
	}
	if !isNum {
		return str == p.Begin
	}
	begin, ok := parseFloat(p.Begin)
	if !ok {
		return false
	}
	if !p.HasEnd {
		return num == begin
	}
	end, ok := parseFloat(p.End)
	if !ok {
		return false
	}
	return num >= begin && num < end
}

// MatchAll reports whether e satisfies every predicate in preds (AND).
func MatchAll(preds []Predicate, e Entry) bool {
	for _, p := range preds {
		if !p.Match(e) {
			return false
		}
	}
	return true
}
