package path

import (
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

var SkipDirs = []string{".git", ".github", ".vscode", "node_modules", "vendor", ".venv"}

// GetAllFilesRecursive returns every file under root ending with one of the
// suffixes, sorted by path. Hidden and vendored directories are skipped.
func GetAllFilesRecursive(fs afero.Fs, root string, suffixes []string) ([]string, error) {
	var paths []string
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != root && slices.Contains(SkipDirs, info.Name()) {
				return filepath.SkipDir
			}

			return nil
		}

		for _, s := range suffixes {
			if strings.HasSuffix(path, s) {
				paths = append(paths, path)
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error walking directory")
	}

	sort.Strings(paths)
	return paths, nil
}

// ExpandPaths resolves each argument to files: files are kept as given,
// directories are walked for the suffixes. Duplicates are dropped.
func ExpandPaths(fs afero.Fs, args []string, suffixes []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		isDir, err := afero.IsDir(fs, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", arg)
		}
		if !isDir {
			out = append(out, arg)
			continue
		}

		files, err := GetAllFilesRecursive(fs, arg, suffixes)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}

	return lo.Uniq(out), nil
}
