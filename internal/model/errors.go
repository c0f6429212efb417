package model

import (
	"fmt"
	"strings"
)

// WorkspaceLoadError is fatal: the workspace could not be loaded at all.
type WorkspaceLoadError struct {
	Descriptor string
	Reason     string
	Err        error
}

func (e *WorkspaceLoadError) Error() string {
	msg := fmt.Sprintf("loading workspace %s: %s", e.Descriptor, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WorkspaceLoadError) Unwrap() error { return e.Err }

// ProjectNotFoundError reports a scan request naming an unknown project.
type ProjectNotFoundError struct {
	Name      string
	Available []string
}

func (e *ProjectNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("project %q not found", e.Name)
	}
	return fmt.Sprintf("project %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// FileError records why one source file was excluded from analysis.
type FileError struct {
	Kind   DiagnosticKind // ParseDiagnostic or BindDiagnostic
	Path   string
	Reason string
	Err    error
}

func (e *FileError) Error() string {
	msg := fmt.Sprintf("%s: %s error: %s", e.Path, e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FileError) Unwrap() error { return e.Err }
