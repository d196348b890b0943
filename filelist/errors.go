package filelist

import "fmt"

// UnknownDependencyError reports a pipeline step requiring a target path
// that is not present in the file list. Raised at sort time, before any
// extraction or tool execution.
type UnknownDependencyError struct {
	Tool     string
	Required string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s requires unknown file %q", e.Tool, e.Required)
}

// ConfigMismatchError reports an attempt to merge two file lists built
// against different tool configurations.
type ConfigMismatchError struct{}

func (e *ConfigMismatchError) Error() string {
	return "cannot merge file lists with different configurations"
}

// ToolExecutionError reports a non-tolerated non-zero exit from a pipeline
// step. It is fatal to the whole run.
type ToolExecutionError struct {
	Cmd      string
	ExitCode int
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, e.Cmd)
}
