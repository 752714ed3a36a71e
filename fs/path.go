package fs

import (
	"strings"

	"github.com/tinyfs/segfs/internal/layout"

	ferrors "github.com/tinyfs/segfs/errors"
)

// splitPath splits a slash-delimited path into at most
// layout.MaxPathComponents components of at most layout.MaxComponentLength
// bytes each. An empty path or "/" yields zero components. Leading,
// trailing, and repeated slashes are tolerated: "//a///b/" and "/a/b" split
// to the same ["a", "b"].
func splitPath(path string) ([]string, ferrors.DriverError) {
	var components []string
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if len(part) > layout.MaxComponentLength {
			return nil, ferrors.ErrInvalidPath.WithMessage("path component exceeds 255 bytes: " + part)
		}
		components = append(components, part)
	}

	if len(components) > layout.MaxPathComponents {
		return nil, ferrors.ErrInvalidPath.WithMessage("path has more than 32 components")
	}
	return components, nil
}
