package indexer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/hbollon/go-edlib"
)

// fuzzyMaxDistance is the Levenshtein distance on normalized fragments
// tolerated by the fuzzy tier — roughly "one differing token" for a
// typical short code line (spec §4.1 matchScore 60).
const fuzzyMaxDistance = 8

// LookupSnippet finds occurrences of snippet in the index, scored per
// spec §4.1: 100 for an exact contiguous match, 80 for a
// whitespace-normalized match, 60 for a fuzzy match tolerating one
// differing token. Ties break by shorter file path, then lower line
// number, so recovery is deterministic (spec S6).
func LookupSnippet(idx *RepositoryIndex, snippet string) []Match {
	lines := strings.Split(snippet, "\n")
	norm := normalizeFragment(lines)
	if norm == "" {
		return nil
	}
	raw := rawFragment(lines)

	key := xxhash.Sum64String(norm)
	var matches []Match
	seen := make(map[string]bool) // file:line, avoid duplicate matches at the same spot across group sizes

	for _, idxPos := range idx.snippetBuckets[key] {
		occ := idx.fragments[idxPos]
		if occ.NormText != norm {
			continue // hash collision guard
		}
		score := 80
		if occ.RawText == raw {
			score = 100
		}
		addMatch(&matches, seen, occ.File, occ.FirstLine, score)
	}

	if len(matches) == 0 {
		matches = fuzzyLookup(idx, norm, seen)
	}

	sortMatches(matches)
	return matches
}

func fuzzyLookup(idx *RepositoryIndex, norm string, seen map[string]bool) []Match {
	var matches []Match
	for _, occ := range idx.fragments {
		// go-edlib's StringsSimilarity returns a similarity in [0,1]
		// (1 - distance / length of the longer string), so the edit
		// distance is recovered as (1 - similarity) * longer.
		similarity, err := edlib.StringsSimilarity(norm, occ.NormText, edlib.Levenshtein)
		if err != nil {
			continue
		}
		longer := len(norm)
		if len(occ.NormText) > longer {
			longer = len(occ.NormText)
		}
		approxDistance := int((1-similarity)*float32(longer) + 0.5)
		if approxDistance <= fuzzyMaxDistance && approxDistance > 0 {
			addMatch(&matches, seen, occ.File, occ.FirstLine, 60)
		}
	}
	return matches
}

func addMatch(matches *[]Match, seen map[string]bool, file string, line, score int) {
	key := file + ":" + strconv.Itoa(line)
	if seen[key] {
		return
	}
	seen[key] = true
	*matches = append(*matches, Match{File: file, Line: line, MatchScore: score})
}

func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		if matches[i].File != matches[j].File {
			if len(matches[i].File) != len(matches[j].File) {
				return len(matches[i].File) < len(matches[j].File)
			}
			return matches[i].File < matches[j].File
		}
		return matches[i].Line < matches[j].Line
	})
}
