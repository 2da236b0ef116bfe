package rag

import (
	"path"
	"regexp"
	"strings"
)

var (
	citationPattern = regexp.MustCompile(`\[([^\[\]\n]{1,200})\](\()?`)
	fileLikePattern = regexp.MustCompile(`\.[A-Za-z0-9]{2,5}$`)
	spaceBeforePunc = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	repeatedSpaces  = regexp.MustCompile(`[ \t]{2,}`)
)

// sanitizeCitations drops bracketed file citations naming files outside
// allowed. It returns the cleaned answer and the allowed files cited, in
// order of first citation. Markdown links and brackets that do not look like
// file names are left alone.
func sanitizeCitations(answer string, allowed []string) (string, []string) {
	matches := citationPattern.FindAllStringSubmatchIndex(answer, -1)
	if len(matches) == 0 {
		return answer, nil
	}

	var (
		b       strings.Builder
		cited   []string
		seen    = make(map[string]struct{})
		last    int
		removed bool
	)
	for _, m := range matches {
		b.WriteString(answer[last:m[0]])
		last = m[1]
		if m[4] >= 0 {
			b.WriteString(answer[m[0]:m[1]])
			continue
		}

		var kept []string
		for _, part := range strings.FieldsFunc(answer[m[2]:m[3]], func(r rune) bool { return r == ',' || r == ';' }) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if name, ok := matchAllowed(part, allowed); ok {
				kept = append(kept, name)
				if _, dup := seen[name]; !dup {
					seen[name] = struct{}{}
					cited = append(cited, name)
				}
				continue
			}
			if !fileLikePattern.MatchString(part) {
				kept = append(kept, part)
			}
		}
		if len(kept) == 0 {
			removed = true
			continue
		}
		b.WriteString("[" + strings.Join(kept, ", ") + "]")
	}
	b.WriteString(answer[last:])

	out := b.String()
	if removed {
		out = spaceBeforePunc.ReplaceAllString(out, "$1")
		out = repeatedSpaces.ReplaceAllString(out, " ")
		out = strings.TrimSpace(out)
	}
	return out, cited
}

func matchAllowed(cited string, allowed []string) (string, bool) {
	for _, name := range allowed {
		if matchFilePath(cited, name) {
			return name, true
		}
	}
	return "", false
}

// normalizePath lowercases a cited path and strips leading "./" and
// trailing slashes.
func normalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(p, "\\", "/")))
	p = strings.TrimPrefix(p, "./")
	return strings.TrimRight(p, "/")
}

// matchFilePath reports whether cited refers to the file name: the same
// path, the same base name, or the same stem when cited has no extension.
func matchFilePath(cited, name string) bool {
	c, n := normalizePath(cited), normalizePath(name)
	if c == "" || n == "" {
		return false
	}
	if c == n || path.Base(c) == path.Base(n) {
		return true
	}
	if path.Ext(c) == "" {
		return normalizeName(c) == normalizeName(fileStem(path.Base(n)))
	}
	return false
}
