package review

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeTitle lowercases a title and strips non-alphanumeric runs, the
// shared normalization used by both fingerprint flavors.
func NormalizeTitle(title string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "")
}

// IntraBranchFingerprint is the dedupe key used within a single branch's
// Adaptive Collection Loop (C5 step 4). It is location-sensitive: two
// issues within the same 5-line bucket of the same file collapse.
func IntraBranchFingerprint(i *Issue) string {
	file := "unknown"
	lineBucket := 0
	if i.Location.Known {
		file = i.Location.File
		lineBucket = i.Location.Line / 5
	}
	return hashParts(NormalizeTitle(i.Title), string(i.Severity), string(i.Category), file, strconv.Itoa(lineBucket))
}

var numericLiteral = regexp.MustCompile(`[0-9]+`)

// NormalizedSnippet collapses whitespace and replaces numeric literals
// with N, the normalization the Cross-Branch Categorizer uses so a
// refactor that only changes line numbers or tweaks a literal doesn't
// break the match.
func NormalizedSnippet(snippet string) string {
	collapsed := collapseWhitespace(snippet)
	return numericLiteral.ReplaceAllString(collapsed, "N")
}

// CrossBranchFingerprint is the location-agnostic matching key used by
// the Categorizer (C6). It falls back to basename(file) when there is no
// code snippet to normalize.
func CrossBranchFingerprint(i *Issue) string {
	title := NormalizeTitle(i.Title)
	if strings.TrimSpace(i.CodeSnippet) != "" {
		return hashParts(title, string(i.Severity), string(i.Category), NormalizedSnippet(i.CodeSnippet))
	}
	file := "unknown"
	if i.Location.Known {
		file = basename(i.Location.File)
	}
	return hashParts(title, string(i.Severity), string(i.Category), file)
}

func hashParts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !inSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func basename(path string) string {
	idx := strings.LastIndexAny(path, "/\\")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

