package batch

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Discover lists the charts under roots with one of the lower case
// extensions, sorted. Files named directly are kept whatever their extension.
func Discover(roots []string, extensions []string) ([]string, error) {
	charts := []string{}
	for _, root := range roots {
		info, err := os.Stat(root)
		if nil != err {
			return nil, err
		}
		if !info.IsDir() {
			charts = append(charts, filepath.Clean(root))
			continue
		}
		if err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if nil != err {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if slices.Contains(extensions, strings.ToLower(filepath.Ext(p))) {
				charts = append(charts, p)
			}
			return nil
		}); nil != err {
			return nil, err
		}
	}
	slices.Sort(charts)
	return slices.Compact(charts), nil
}
