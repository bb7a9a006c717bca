package formats

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/project"
)

func nodeKindLabel(n buildsystem.NodeSummary) string {
	if n.Kind == project.KindPro {
		return n.ProjectType.String()
	}
	return "include"
}

func nodeLabel(n buildsystem.NodeSummary) string {
	exact := 0
	for _, files := range n.Files {
		for _, f := range files {
			if f.Origin == project.ExactParse {
				exact++
			}
		}
	}
	return fmt.Sprintf("%s\\n(%s, %d files)", path.Base(n.Path), nodeKindLabel(n), exact)
}

func sanitizeID(name string) string {
	if name == "" {
		return "n"
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	out := b.String()
	if unicode.IsDigit(rune(out[0])) {
		return "n_" + out
	}
	return out
}

func makeIDs(names []string) map[string]string {
	ids := make(map[string]string, len(names))
	used := make(map[string]int, len(names))
	for _, name := range names {
		if _, ok := ids[name]; ok {
			continue
		}
		base := sanitizeID(path.Base(name))
		idx := used[base]
		used[base] = idx + 1
		if idx == 0 {
			ids[name] = base
			continue
		}
		ids[name] = fmt.Sprintf("%s_%d", base, idx+1)
	}
	return ids
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
