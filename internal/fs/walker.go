package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer wraps two ignorers.
type combinedIgnorer struct {
	file     *gitignore.GitIgnore
	patterns *gitignore.GitIgnore
}

// MatchesPath returns true if the path matches any ignore pattern.
func (c *combinedIgnorer) MatchesPath(path string) bool {
	return c.file.MatchesPath(path) || c.patterns.MatchesPath(path)
}

// FileWalker finds the uploadable documents below a root directory.
type FileWalker struct {
	opts    WalkOptions
	ignorer Ignorer
	stats   WalkStats
	extSet  map[string]bool
}

// NewFileWalker creates a new file walker.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	w := &FileWalker{opts: opts}

	if len(opts.Extensions) > 0 {
		w.extSet = make(map[string]bool)
		for _, ext := range opts.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extSet[strings.ToLower(ext)] = true
		}
	}

	w.initIgnorer()
	return w, nil
}

// Root returns the absolute root directory.
func (w *FileWalker) Root() string {
	return w.opts.Root
}

// initIgnorer compiles the configured patterns, plus the root .gitignore
// when enabled.
func (w *FileWalker) initIgnorer() {
	patterns := gitignore.CompileIgnoreLines(w.opts.IgnorePatterns...)

	if w.opts.UseGitignore {
		gitignorePath := filepath.Join(w.opts.Root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			gi, err := gitignore.CompileIgnoreFile(gitignorePath)
			if err != nil {
				log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
			} else {
				w.ignorer = &combinedIgnorer{file: gi, patterns: patterns}
				return
			}
		}
	}

	w.ignorer = patterns
}

// Walk traverses the directory tree and calls fn for every document that
// passes the filters. The walk stops if fn returns an error.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if relPath != "." && w.shouldSkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		info, ok := w.accept(path, relPath)
		if !ok {
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size
		return fn(info)
	})
}

// Accept applies the walk filters to a single path below the root. It is
// used for paths reported by the watcher.
func (w *FileWalker) Accept(path string) (FileInfo, bool) {
	relPath, err := filepath.Rel(w.opts.Root, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return FileInfo{}, false
	}

	dir := filepath.Dir(relPath)
	for dir != "." && dir != string(filepath.Separator) {
		if w.shouldSkipDir(filepath.Base(dir), dir) {
			return FileInfo{}, false
		}
		dir = filepath.Dir(dir)
	}

	return w.accept(path, relPath)
}

// SkipDir reports whether a directory below the root is excluded from the
// walk.
func (w *FileWalker) SkipDir(path string) bool {
	relPath, err := filepath.Rel(w.opts.Root, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return true
	}
	if relPath == "." {
		return false
	}
	return w.shouldSkipDir(filepath.Base(relPath), relPath)
}

// accept checks one regular file against the filters and hashes it.
func (w *FileWalker) accept(path, relPath string) (FileInfo, bool) {
	name := filepath.Base(path)
	if w.shouldSkipFile(name, relPath) {
		w.stats.FilesSkipped++
		return FileInfo{}, false
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return FileInfo{}, false
	}

	if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
		log.Debug("Skipping large file", "path", relPath, "size", info.Size())
		w.stats.FilesSkipped++
		w.stats.SkippedBytes += info.Size()
		return FileInfo{}, false
	}

	if info.Size() == 0 {
		w.stats.FilesSkipped++
		return FileInfo{}, false
	}

	hash, err := hashFile(path)
	if err != nil {
		log.Debug("Failed to hash file", "path", path, "error", err)
		return FileInfo{}, false
	}

	return FileInfo{
		Path:    path,
		RelPath: relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hash,
	}, true
}

// Stats returns the walk statistics.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

// shouldSkipDir checks if a directory should be skipped.
func (w *FileWalker) shouldSkipDir(name, relPath string) bool {
	if name == ".git" {
		return true
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignorer != nil && w.ignorer.MatchesPath(relPath+"/")
}

// shouldSkipFile checks if a file should be skipped.
func (w *FileWalker) shouldSkipFile(name, relPath string) bool {
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	if w.extSet != nil && !w.extSet[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	return w.ignorer != nil && w.ignorer.MatchesPath(relPath)
}

// StatFile describes a single file given on the command line. Filters do
// not apply; the user named it explicitly.
func StatFile(path string) (FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileInfo{}, fmt.Errorf("file does not exist: %w", err)
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("not a regular file: %s", path)
	}

	hash, err := hashFile(abs)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to hash file: %w", err)
	}
	return FileInfo{
		Path:    abs,
		RelPath: filepath.Base(abs),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hash,
	}, nil
}

// hashFile computes the xxhash of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// HashContent computes the xxhash of content bytes.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}
