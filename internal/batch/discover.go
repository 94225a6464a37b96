// Package batch finds input images and runs the cutout pipeline over them
// with a bounded worker pool, isolating per-image failures into a report.
package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Discover lists the images under root in lexical order. Subdirectories
// are descended only when recursive is set; directories listed in exclude
// are never entered. A root naming a single file yields just that file.
func Discover(root string, recursive bool, exclude ...string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", root, err)
	}
	if !info.IsDir() {
		if !IsImage(root) {
			return nil, fmt.Errorf("input %s is not a supported image", root)
		}
		return []string{root}, nil
	}

	skip := make(map[string]bool, len(exclude))
	for _, dir := range exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = true
		}
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && skip[abs] {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsImage(path) && !strings.HasPrefix(d.Name(), ".") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// OutputPath mirrors input's position under inputRoot into outputRoot,
// replacing the extension with suffix + ".png". Inputs outside inputRoot
// land directly in outputRoot.
func OutputPath(inputRoot, outputRoot, input, suffix string) string {
	rel, err := filepath.Rel(inputRoot, input)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(input)
	}
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(outputRoot, stem+suffix+".png")
}

// InputRoot is the directory outputs are mirrored from: input itself when
// it is a directory, otherwise the directory holding it.
func InputRoot(input string) string {
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		return filepath.Dir(input)
	}
	return input
}

// DebugPath is where the trimap visualisation of input goes.
func DebugPath(inputRoot, debugRoot, input string) string {
	return OutputPath(inputRoot, debugRoot, input, "-trimap")
}
