package workspace

import "errors"

var (
	errEmptyPath     = errors.New("path cannot be empty")
	errPathTraversal = errors.New("path escapes workspace root")
)
