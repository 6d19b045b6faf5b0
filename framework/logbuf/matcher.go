package logbuf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Matcher decides whether a single output line denotes some event.
type Matcher interface {
	Match(line string) bool
	String() string
}

// Contains matches any line containing the string.
type Contains string

func (c Contains) Match(line string) bool {
	return strings.Contains(line, string(c))
}

func (c Contains) String() string {
	return "line containing " + strconv.Quote(string(c))
}

// Pattern matches lines against a regular expression.
type Pattern struct {
	re *regexp.Regexp
}

func Regexp(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid regex: %w", err)
	}
	return Pattern{re: re}, nil
}

func (p Pattern) Match(line string) bool {
	return p.re != nil && p.re.MatchString(line)
}

func (p Pattern) String() string {
	if p.re == nil {
		return "line matching //"
	}
	return "line matching /" + p.re.String() + "/"
}

// AnyOf matches a line if any of its members does. An empty AnyOf matches nothing.
type AnyOf []Matcher

// Marker parses a configured marker. A marker written between slashes, such as
// /Received \('demo/.*'/, is a regular expression; anything else matches as a substring.
func Marker(s string) (Matcher, error) {
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		return Regexp(s[1 : len(s)-1])
	}
	return Contains(s), nil
}

// Markers parses each of ss with Marker and matches a line if any of them does.
func Markers(ss ...string) (AnyOf, error) {
	ret := make(AnyOf, 0, len(ss))
	for _, s := range ss {
		m, err := Marker(s)
		if err != nil {
			return nil, fmt.Errorf("marker %q: %w", s, err)
		}
		ret = append(ret, m)
	}
	return ret, nil
}

func (a AnyOf) Match(line string) bool {
	for _, m := range a {
		if m.Match(line) {
			return true
		}
	}
	return false
}

func (a AnyOf) String() string {
	var ss []string
	for _, m := range a {
		ss = append(ss, m.String())
	}
	return strings.Join(ss, " or ")
}
