package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Category selects one of the two knowledge subtrees.
type Category string

const (
	CategorySkills Category = "skills"
	CategoryFacts  Category = "facts"
)

// PathTraversalError reports a read whose resolved path escapes the
// category root.
type PathTraversalError struct {
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path escapes knowledge root: %s", e.Path)
}

// Store reads knowledge documents for one agent package rooted at a
// directory containing skills/ and facts/ subtrees. Immutable after
// construction.
type Store struct {
	root string
}

// NewStore opens the knowledge tree rooted at dir. A missing directory is
// fine; listings are empty and reads fail per file.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Entry is one inventory line: a top-level document's identity.
type Entry struct {
	Name         string
	RelativePath string
	Description  string
}

// ListTopLevel returns the documents sitting directly in the category
// directory, sorted by file name. Subdirectory documents are omitted,
// keeping them out of the advertised inventory.
func (s *Store) ListTopLevel(category Category) ([]Entry, error) {
	categoryRoot := filepath.Join(s.root, string(category))

	dirEntries, err := os.ReadDir(categoryRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", category, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
			continue
		}
		doc, err := s.load(categoryRoot, de.Name())
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Name:         doc.Name,
			RelativePath: de.Name(),
			Description:  doc.Description,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelativePath < entries[j].RelativePath
	})
	return entries, nil
}

// Read resolves relPath under the category root and returns the document
// body without its header. Subdirectory paths are readable; escaping paths
// fail with PathTraversalError.
func (s *Store) Read(category Category, relPath string) (string, error) {
	doc, err := s.ReadDocument(category, relPath)
	if err != nil {
		return "", err
	}
	return doc.Body, nil
}

// ReadDocument is Read returning the full parsed document.
func (s *Store) ReadDocument(category Category, relPath string) (*Document, error) {
	categoryRoot := filepath.Join(s.root, string(category))

	if filepath.IsAbs(relPath) {
		return nil, &PathTraversalError{Path: relPath}
	}

	resolved := filepath.Clean(filepath.Join(categoryRoot, relPath))
	rel, err := filepath.Rel(categoryRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, &PathTraversalError{Path: relPath}
	}

	doc, err := s.load(categoryRoot, rel)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) load(categoryRoot, relPath string) (*Document, error) {
	content, err := os.ReadFile(filepath.Join(categoryRoot, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge document: %w", err)
	}
	return Parse(string(content), filepath.ToSlash(relPath))
}
