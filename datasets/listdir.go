package datasets

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// listDir returns the paths of all entries in dir, sorted lexicographically.
// A missing or empty directory yields an empty listing, not an error - the
// caller decides whether an empty split matters.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// listDirNum is listDir with numeric-suffix ordering: filenames are compared
// by the non-digit prefix of their stem first, then by the integer value of
// the trailing digit run, so img_2.png sorts before img_10.png. Every
// filename in the directory must carry a trailing number.
func listDirNum(dir string) ([]string, error) {
	paths, err := listDir(dir)
	if err != nil || len(paths) == 0 {
		return paths, err
	}
	type sortKey struct {
		prefix string
		num    int
	}
	keys := make(map[string]sortKey, len(paths))
	for _, p := range paths {
		prefix, num, err := splitNumSuffix(filepath.Base(p))
		if err != nil {
			return nil, fmt.Errorf("cannot sort %s numerically: %w", p, err)
		}
		keys[p] = sortKey{prefix: prefix, num: num}
	}
	slices.SortStableFunc(paths, func(a, b string) int {
		ka, kb := keys[a], keys[b]
		if c := strings.Compare(ka.prefix, kb.prefix); c != 0 {
			return c
		}
		return cmp.Compare(ka.num, kb.num)
	})
	return paths, nil
}

// splitNumSuffix strips the extension (last '.'-delimited segment) from name
// and splits the remaining stem into its non-digit prefix and the integer
// value of its trailing digit run.
func splitNumSuffix(name string) (prefix string, num int, err error) {
	stem := name
	if i := strings.LastIndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	i := len(stem)
	for i > 0 && stem[i-1] >= '0' && stem[i-1] <= '9' {
		i--
	}
	if i == len(stem) {
		return "", 0, fmt.Errorf("no trailing number in %q", name)
	}
	num, err = strconv.Atoi(stem[i:])
	if err != nil {
		return "", 0, fmt.Errorf("bad numeric suffix in %q: %w", name, err)
	}
	return stem[:i], num, nil
}
