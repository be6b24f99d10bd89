package policy

import (
	"path"
	"strings"
)

// PrecachePrefix prefixes the per-version precache name.
const PrecachePrefix = "precache-"

// PrecacheName returns the cache name holding the precached assets of version.
func PrecacheName(version string) string {
	return PrecachePrefix + version
}

// Manifest selects which build assets are precached at install time.
type Manifest struct {
	Globs   []string
	Exclude []string
}

// DefaultManifest precaches scripts, styles, images and fonts.
func DefaultManifest() Manifest {
	return Manifest{
		Globs: []string{"**/*.{js,css,png,jpg,svg,ico,webp,woff2}"},
	}
}

// Includes reports whether asset should be precached. HTML documents are
// never precached, whatever the globs say.
func (m Manifest) Includes(asset string) bool {
	name := strings.TrimPrefix(asset, "/")
	if name == "" || IsDocument(name) {
		return false
	}
	for _, g := range m.Exclude {
		if matchGlob(g, name) {
			return false
		}
	}
	for _, g := range m.Globs {
		if matchGlob(g, name) {
			return true
		}
	}
	return false
}

// Select filters assets down to those the manifest precaches, keeping order
// and dropping duplicates.
func (m Manifest) Select(assets []string) []string {
	out := make([]string, 0, len(assets))
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		name := "/" + strings.TrimPrefix(a, "/")
		if seen[name] || !m.Includes(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// IsDocument reports whether name looks like an HTML document.
func IsDocument(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// matchGlob matches name against pattern. Besides path.Match syntax it
// supports one level of {a,b} alternation and a leading "**/" that matches
// any number of directories.
func matchGlob(pattern, name string) bool {
	for _, pat := range expandBraces(pattern) {
		if rest, ok := strings.CutPrefix(pat, "**/"); ok {
			segs := strings.Split(name, "/")
			for i := range segs {
				if matched, _ := path.Match(rest, strings.Join(segs[i:], "/")); matched {
					return true
				}
			}
			continue
		}
		if matched, _ := path.Match(pat, name); matched {
			return true
		}
	}
	return false
}

func expandBraces(pattern string) []string {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[open:], '}')
	if end < 0 {
		return []string{pattern}
	}
	end += open
	prefix, suffix := pattern[:open], pattern[end+1:]
	var out []string
	for _, alt := range strings.Split(pattern[open+1:end], ",") {
		out = append(out, expandBraces(prefix+alt+suffix)...)
	}
	return out
}
