// Package project lays out the on-disk structure of a structured project and
// copies datasets into it.
//
// Category 0 holds project-level inputs. Category 1 holds realizations, each
// with fixed input, intermediate and output subdirectories.
package project

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Top-level categories.
const (
	CategoryInputs       = 0
	CategoryRealizations = 1
)

// Realization subdirectories.
const (
	SubInputs        = 0
	SubIntermediates = 1
	SubOutputs       = 2
)

var (
	categoryDirs = []string{"01_Inputs", "02_Realizations"}
	subDirs      = []string{"01_Inputs", "02_Intermediates", "03_Outputs"}
)

// RelDir returns the slash-separated directory for a category, relative to
// the project root. sub and realID only apply to realizations.
func RelDir(category, sub int, realID string) (string, error) {
	switch category {
	case CategoryInputs:
		return categoryDirs[CategoryInputs], nil
	case CategoryRealizations:
		if realID == "" {
			return "", errors.New("realization id is required")
		}
		if sub < 0 || sub >= len(subDirs) {
			return "", fmt.Errorf("unknown realization subdirectory %d", sub)
		}
		return path.Join(categoryDirs[CategoryRealizations], realID, subDirs[sub]), nil
	default:
		return "", fmt.Errorf("unknown project category %d", category)
	}
}

// AbsDir returns the directory for a category under root and creates it.
func AbsDir(root string, category, sub int, realID string) (string, error) {
	rel, err := RelDir(category, sub, realID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}
	return dir, nil
}

// Rel returns target relative to root with forward slashes. Targets outside
// root are returned unchanged.
func Rel(root, target string) string {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return target
	}
	return filepath.ToSlash(rel)
}

// CopyDataset copies src into dir along with any sidecar files sharing its
// stem (segments.shp, segments.dbf, segments.prj...). It returns the path of
// the copied primary file.
func CopyDataset(src, dir string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("dataset %s: %w", src, err)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}

	for _, f := range sidecars(src) {
		if err := copyFile(f, filepath.Join(dir, filepath.Base(f))); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, filepath.Base(src)), nil
}

// sidecars lists src and the files that belong to it: the stem plus a single
// extension (segments.dbf), or the primary file's XML metadata
// (segments.shp.xml). Names like segments.old.shp are other datasets.
func sidecars(src string) []string {
	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	files := []string{src}
	entries, err := os.ReadDir(filepath.Dir(src))
	if err != nil {
		return files
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base {
			continue
		}
		rest, ok := strings.CutPrefix(name, stem+".")
		if !ok || (strings.Contains(rest, ".") && "."+rest != ext+".xml") {
			continue
		}
		files = append(files, filepath.Join(filepath.Dir(src), name))
	}
	return files
}

func copyFile(src, dst string) (err error) {
	if same, _ := sameFile(src, dst); same {
		return nil
	}

	in, err := os.Open(src) //nolint:gosec // dataset path is supplied by the operator
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) //nolint:gosec // destination is inside the project
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", dst, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
