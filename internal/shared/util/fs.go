package util

import (
	"os"
	"path"
	"strings"
)

const autoSaveSuffix = ".autosave"

// RecursiveEnumerate lists every file below folder. Directories are walked
// unless they are symlinks, which are reported as plain entries. Hidden
// entries and editor autosave files are skipped.
func RecursiveEnumerate(folder string) map[string]struct{} {
	out := make(map[string]struct{})
	enumerateInto(CleanPath(folder), out)
	return out
}

func enumerateInto(dir string, out map[string]struct{}) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, ent := range entries {
		name := ent.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := path.Join(dir, name)
		if ent.IsDir() && ent.Type()&os.ModeSymlink == 0 {
			enumerateInto(p, out)
			continue
		}
		if strings.HasSuffix(name, autoSaveSuffix) {
			continue
		}
		out[p] = struct{}{}
	}
}

// RecursiveDirs lists every non-symlinked subdirectory below folder, each
// with a trailing slash.
func RecursiveDirs(folder string) []string {
	var out []string
	folder = WithTrailingSlash(CleanPath(folder))
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil
	}
	for _, ent := range entries {
		if !ent.IsDir() || ent.Type()&os.ModeSymlink != 0 || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		sub := folder + ent.Name() + "/"
		out = append(out, sub)
		out = append(out, RecursiveDirs(sub)...)
	}
	return out
}
