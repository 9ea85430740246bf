package workspace

import (
	"path/filepath"
	"strings"
)

const maxFilenameLength = 128

// SanitizeFilename strips path separators and disallowed characters from an
// uploaded filename, caps its length, and preserves the extension. An empty
// or fully-stripped name becomes "file".
func SanitizeFilename(name string) string {
	// Drop any directory component, including Windows-style separators.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name = strings.Trim(b.String(), ".")
	if name == "" {
		return "file"
	}

	if len(name) > maxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) >= maxFilenameLength {
			ext = ""
		}
		name = name[:maxFilenameLength-len(ext)] + ext
	}
	return name
}
