// Package scrape turns trusted channel chatter into release drafts. A
// declarative rule table maps each channel to its trusted announce bots and
// their message shapes; one generic dispatch routine runs the table.
package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// similarityThreshold is the minimum identity match percentage for a poster
// to be trusted. Guards against unrelated chatter in the same channel.
const similarityThreshold = 49

// similarText counts matching characters the way PHP's similar_text does:
// longest common substring, then recurse on both remainders.
func similarText(a, b string) int {
	pos1, pos2, max := 0, 0, 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > max {
				pos1, pos2, max = i, j, k
			}
		}
	}
	if max == 0 {
		return 0
	}
	sum := max
	if pos1 > 0 && pos2 > 0 {
		sum += similarText(a[:pos1], b[:pos2])
	}
	if pos1+max < len(a) && pos2+max < len(b) {
		sum += similarText(a[pos1+max:], b[pos2+max:])
	}
	return sum
}

// Similarity returns the percentage of matching characters between two
// strings, 0 to 100.
func Similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	return float64(similarText(a, b)) * 200 / float64(len(a)+len(b))
}

// trusted reports whether a (lowercased) poster identity fuzzy-matches any of
// the trusted identities.
func trusted(poster string, identities []string) bool {
	for _, id := range identities {
		if Similarity(poster, id) > similarityThreshold {
			return true
		}
	}
	return false
}

var timeAgoRE = regexp.MustCompile(`(?i)((?P<day>\d+)d)?\s*((?P<hour>\d+)h)?\s*((?P<min>\d+)m)?\s*((?P<sec>\d+)s)?`)

// ParseTimeAgo converts a relative "3h 29m" style expression into a duration.
// Any subset of d/h/m/s may be present; an empty or unrecognized expression
// yields zero.
func ParseTimeAgo(ago string) time.Duration {
	m := namedMatches(timeAgoRE, ago)
	if m == nil {
		return 0
	}
	var total time.Duration
	for unit, mult := range map[string]time.Duration{
		"day":  24 * time.Hour,
		"hour": time.Hour,
		"min":  time.Minute,
		"sec":  time.Second,
	} {
		if v := m[unit]; v != "" {
			n, err := strconv.Atoi(v)
			if err == nil {
				total += time.Duration(n) * mult
			}
		}
	}
	return total
}

var sizeFromFilesRE = regexp.MustCompile(`(?i)(?P<files>\d+)x(?P<size>\d+)\s*(?P<ext>[KMGTP]?B)\s*$`)

// SizeFromFiles derives a total size from a "<count>x<per-file-size>" file
// descriptor, e.g. "16x50MB" -> "800MB". Returns empty when the descriptor
// does not carry sizes.
func SizeFromFiles(files string) string {
	m := namedMatches(sizeFromFilesRE, files)
	if m == nil {
		return ""
	}
	count, err1 := strconv.Atoi(m["files"])
	per, err2 := strconv.Atoi(m["size"])
	if err1 != nil || err2 != nil {
		return ""
	}
	return strconv.Itoa(count*per) + strings.ToUpper(m["ext"])
}

// namedMatches runs re against s and returns named capture groups, nil when
// there is no match. Unmatched optional groups come back as empty strings.
func namedMatches(re *regexp.Regexp, s string) map[string]string {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil
	}
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && match[i] != "" {
			out[name] = match[i]
		}
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
