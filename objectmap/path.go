package objectmap

import "strings"

// normalize strips a single trailing slash, so "/a/b/" and "/a/b" compare
// equal everywhere a caller-supplied path is used (spec.md §4.4).
func normalize(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return strings.TrimSuffix(path, "/")
	}
	return path
}

// isAncestor reports whether ancestor is a strict, segment-aligned prefix of
// path: either ancestor is "/" (the root, ancestor of everything but
// itself) or path begins with ancestor+"/".
func isAncestor(ancestor, path string) bool {
	if ancestor == path {
		return false
	}
	if ancestor == "/" {
		return path != "/"
	}
	return strings.HasPrefix(path, ancestor+"/")
}

// relativeDepth returns the number of '/' separators in the suffix of path
// that follows base, i.e. 1 for a direct child, 2 for a grandchild, and so
// on. It assumes isAncestor(base, path) is true.
func relativeDepth(base, path string) int {
	suffix := strings.TrimPrefix(path, base)
	suffix = strings.TrimPrefix(suffix, "/")
	return strings.Count(suffix, "/") + 1
}
