package pubsub

import (
	"regexp"
	"strings"

	"github.com/agenthive/hivemem/lib/store"
)

// Matcher matches keys against a subscription pattern. Three pattern forms
// are supported:
//
//   - a key literal ("agent:1:ctx")
//   - a glob using '*' (any run) and '?' (single char), e.g. "agent:*"
//   - an explicit regular expression with the "re:" prefix, e.g. "re:^job-\d+$"
type Matcher struct {
	literal string
	re      *regexp.Regexp
}

// CompileMatcher parses a pattern. It fails with a Validation error when an
// explicit regex does not compile.
func CompileMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, store.NewError(store.CodeValidation, "", "subscription pattern must not be empty")
	}
	if rest, ok := strings.CutPrefix(pattern, "re:"); ok {
		re, err := regexp.Compile(rest)
		if err != nil {
			return nil, store.WrapError(store.CodeValidation, "", err, "invalid subscription regex %q", rest)
		}
		return &Matcher{re: re}, nil
	}
	if !strings.ContainsAny(pattern, "*?") {
		return &Matcher{literal: pattern}, nil
	}
	return &Matcher{re: globToRegexp(pattern)}, nil
}

// Match reports whether key satisfies the pattern.
func (m *Matcher) Match(key string) bool {
	if m.re != nil {
		return m.re.MatchString(key)
	}
	return m.literal == key
}

// globToRegexp translates a glob pattern into an anchored regexp. All
// regexp metacharacters except '*' and '?' are quoted.
func globToRegexp(glob string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}
