package indexer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by ExtractLines when file/line falls outside
// the indexed repository.
var ErrNotFound = fmt.Errorf("indexer: location not found")

// ExtractLines returns the source around line (1-based) in file,
// including context lines before and after, plus a language hint
// derived from the file extension. It fails with ErrNotFound if file is
// not part of the index or line is out of range.
func ExtractLines(idx *RepositoryIndex, file string, line, context int) (ExtractResult, error) {
	if !idx.HasFile(file) {
		return ExtractResult{}, ErrNotFound
	}
	total := idx.LineCount(file)
	if line < 1 || line > total {
		return ExtractResult{}, ErrNotFound
	}

	start := line - context
	if start < 1 {
		start = 1
	}
	end := line + context
	if end > total {
		end = total
	}

	f, err := os.Open(filepath.Join(idx.Root, file))
	if err != nil {
		return ExtractResult{}, ErrNotFound
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var collected []string
	for n := 1; scanner.Scan(); n++ {
		if n > end {
			break
		}
		if n >= start {
			collected = append(collected, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return ExtractResult{}, ErrNotFound
	}
	if len(collected) == 0 {
		return ExtractResult{}, ErrNotFound
	}

	return ExtractResult{
		Code:         strings.Join(collected, "\n"),
		LanguageHint: languageHint(file),
	}, nil
}
