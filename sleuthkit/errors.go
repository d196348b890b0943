package sleuthkit

import "fmt"

// PathError reports a pattern that cannot be resolved against a partition
// tree, such as an absolute path where a relative one is expected.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// NotADirectoryError reports a directory operation requested on an entry
// that is not a directory.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("%q is not a directory", e.Path)
}

// IsADirectoryError reports a file operation requested on a directory.
type IsADirectoryError struct {
	Path string
}

func (e *IsADirectoryError) Error() string {
	return fmt.Sprintf("%q is a directory", e.Path)
}
