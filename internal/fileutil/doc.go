// Package fileutil finds plan files on disk.
//
// ScanDirectory walks a directory and returns the files that match a set of
// extensions and an optional filename pattern. Hidden directories and the
// configured exclusions are skipped, non-fatal walk errors are collected, and
// results are absolute and sorted.
//
// ExpandPlanPaths turns command arguments into plan files: files are kept as
// given and directories are replaced by the plan files found inside them.
//
//	paths, err := fileutil.ExpandPlanPaths([]string{"plans/", "login.md"})
package fileutil
