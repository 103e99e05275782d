package keys

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Prefix namespaces every key written by this service.
const Prefix = "noaa"

// Key builds the cache key of a query service call. Parameter order does not
// matter; blank values are dropped.
func Key(op string, params url.Values) string {
	opNorm := sanitizeForKey(strings.ToLower(strings.TrimSpace(op)))
	canon := canonical(params)
	safe := sanitizeForKey(canon)

	const maxParamTextLen = 160
	if len(safe) > maxParamTextLen {
		safe = safe[:maxParamTextLen]
	}

	sum := xxhash.Sum64String(opNorm + "?" + canon)

	return fmt.Sprintf("%s:%s:%s:f=%016x", Prefix, opNorm, safe, sum)
}

// canonical encodes params sorted by key with whitespace collapsed.
func canonical(params url.Values) string {
	clean := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			v = collapseASCIIWhitespace(v)
			if v == "" {
				continue
			}
			clean.Add(strings.TrimSpace(k), v)
		}
	}
	return clean.Encode()
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '+' || r == '\t' || r == '\n' || r == '\r':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}

// YearIndex names the set holding every payload key of a dataset year. Year
// zero collects the catalog calls that span years.
func YearIndex(year int) string {
	return fmt.Sprintf("%s:idx:year=%d", Prefix, year)
}
