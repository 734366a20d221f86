package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// PlanExtensions are the file extensions the plan parser understands.
var PlanExtensions = []string{".md", ".markdown", ".yaml", ".yml", ".json"}

// DefaultExcludeDirs are never searched for plans.
var DefaultExcludeDirs = []string{"node_modules", "vendor", "testdata"}

// ScanOptions configures the directory scanning behavior
type ScanOptions struct {
	// Pattern is a regex pattern to match filenames (without extension)
	Pattern string
	// Extensions is a list of file extensions to include (e.g., ".md", ".yaml")
	Extensions []string
	// Recursive enables recursive directory scanning
	Recursive bool
	// ExcludeDirs is a list of directory names to exclude
	ExcludeDirs []string
	// MaxDepth limits recursion depth (0 = unlimited, 1 = current dir only)
	MaxDepth int
}

// ScanResult contains the results of a directory scan
type ScanResult struct {
	// Files contains the absolute paths of all matched files
	Files []string
	// Errors contains any errors encountered during scanning
	Errors []error
}

// ScanDirectory scans a directory for files matching the provided options
func ScanDirectory(dir string, opts ScanOptions) (*ScanResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	var pattern *regexp.Regexp
	if opts.Pattern != "" {
		if pattern, err = regexp.Compile(opts.Pattern); err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
	}

	extensions := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[strings.ToLower(ext)] = true
	}
	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excluded[name] = true
	}

	result := &ScanResult{Files: []string{}}
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("error accessing %s: %w", path, err))
			return nil
		}
		if path == dir {
			return nil
		}

		if d.IsDir() {
			if excluded[d.Name()] || strings.HasPrefix(d.Name(), ".") || !opts.Recursive {
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 {
				rel, _ := filepath.Rel(dir, path)
				if strings.Count(rel, string(filepath.Separator))+1 >= opts.MaxDepth {
					return filepath.SkipDir
				}
			}
			return nil
		}

		name := d.Name()
		if len(extensions) > 0 && !extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if pattern != nil && !pattern.MatchString(strings.TrimSuffix(name, filepath.Ext(name))) {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to resolve path %s: %w", path, err))
			return nil
		}
		result.Files = append(result.Files, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(result.Files)
	return result, nil
}

// ExpandPlanPaths keeps file arguments as given and replaces each directory
// with the plan files found beneath it. Duplicates are dropped. A directory
// without plans is an error.
func ExpandPlanPaths(args []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		key := p
		if abs, err := filepath.Abs(p); err == nil {
			key = abs
		}
		if !seen[key] {
			seen[key] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			// missing files are reported by the parser
			add(arg)
			continue
		}
		result, err := ScanDirectory(arg, ScanOptions{
			Extensions:  PlanExtensions,
			Recursive:   true,
			ExcludeDirs: DefaultExcludeDirs,
		})
		if err != nil {
			return nil, err
		}
		if len(result.Files) == 0 {
			return nil, fmt.Errorf("no plan files found in %s", arg)
		}
		for _, f := range result.Files {
			add(f)
		}
	}
	return paths, nil
}
