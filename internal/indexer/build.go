package indexer

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/alpsla/reviewengine/internal/config"
	"github.com/alpsla/reviewengine/internal/rerrors"
	"github.com/alpsla/reviewengine/internal/rlog"
)

// BuildIndex walks root single-threaded, one pass per file (spec §4.1),
// building the file set, line counts, and snippet index. It only fails
// if root itself is unreadable; individual file read errors are logged
// and the file is skipped.
func BuildIndex(root string, idxCfg config.Index) (*RepositoryIndex, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, rerrors.IndexIOError(root, err)
	}
	if !info.IsDir() {
		return nil, rerrors.IndexIOError(root, os.ErrInvalid)
	}

	idx := &RepositoryIndex{
		Root:           root,
		Files:          make(map[string]struct{}),
		LineCounts:     make(map[string]int),
		snippetBuckets: make(map[uint64][]int),
		BuiltAt:        time.Now(),
	}

	err = filepath.Walk(root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			rlog.Printf("indexer: skipping %s: %v", path, walkErr)
			return nil
		}
		if fi.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rlog.Printf("indexer: skipping %s: %v", path, relErr)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !isIndexable(rel) {
			return nil
		}

		lineCount, err := indexFile(idx, rel, path, fi.Size(), idxCfg)
		if err != nil {
			rlog.Printf("indexer: skipping %s: %v", rel, err)
			return nil
		}

		idx.Files[rel] = struct{}{}
		idx.LineCounts[rel] = lineCount
		return nil
	})
	if err != nil {
		return nil, rerrors.IndexIOError(root, err)
	}

	return idx, nil
}

// indexFile reads one file, counting its lines and (when under the size
// cap) feeding contiguous non-blank line groups into the snippet index.
func indexFile(idx *RepositoryIndex, rel, abs string, size int64, idxCfg config.Index) (int, error) {
	f, err := os.Open(abs)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	lineCount := len(lines)
	if lineCount == 0 {
		return 0, nil
	}

	if size > idxCfg.FileSizeCapBytes {
		// Retained in Files/LineCounts but not snippet-indexed (spec §4.1).
		return lineCount, nil
	}

	indexSnippets(idx, rel, lines, idxCfg.SnippetGroupMin, idxCfg.SnippetGroupMax)
	return lineCount, nil
}

// indexSnippets scans contiguous non-blank line groups of length
// [groupMin, groupMax] and adds each as a snippet-index occurrence
// anchored at the group's first line (1-based).
func indexSnippets(idx *RepositoryIndex, rel string, lines []string, groupMin, groupMax int) {
	n := len(lines)
	for start := 0; start < n; start++ {
		if isBlank(lines[start]) {
			continue
		}
		for size := groupMin; size <= groupMax; size++ {
			end := start + size
			if end > n {
				break
			}
			group := lines[start:end]
			if isBlank(group[len(group)-1]) {
				break // a group never spans a blank line
			}
			norm := normalizeFragment(group)
			if norm == "" {
				continue
			}
			occ := Occurrence{
				File:      rel,
				FirstLine: start + 1,
				RawText:   rawFragment(group),
				NormText:  norm,
			}
			key := xxhash.Sum64String(norm)
			idx.fragments = append(idx.fragments, occ)
			idx.snippetBuckets[key] = append(idx.snippetBuckets[key], len(idx.fragments)-1)
		}
	}
}

func isBlank(line string) bool {
	for _, r := range line {
		if r != ' ' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}
