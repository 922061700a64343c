package obs

import "strings"

// CanonicalPath collapses resource identifiers in API paths so metric
// label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}

	for _, prefix := range []string{"/v1/collaborations/", "/v1/proposals/", "/v1/tokens/balances/", "/v1/access/principals/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		switch len(parts) {
		case 1:
			return prefix + ":id"
		case 2:
			return prefix + ":id/" + parts[1]
		default:
			return path
		}
	}
	return path
}
