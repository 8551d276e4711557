// Package output writes machine-readable JSON responses for --json mode.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/toba/linsync/internal/syncer"
	"github.com/toba/linsync/internal/task"
)

// Error codes for JSON responses
const (
	ErrNotFound      = "NOT_FOUND"
	ErrNotConfigured = "NOT_CONFIGURED"
	ErrValidation    = "VALIDATION_ERROR"
	ErrRemote        = "REMOTE_ERROR"
	ErrFileError     = "FILE_ERROR"
	ErrConflict      = "CONFLICT"
)

// Response is the standard JSON response envelope.
type Response struct {
	Success bool               `json:"success"`
	Task    *task.Task         `json:"task,omitempty"`
	Result  *syncer.Result     `json:"result,omitempty"`
	Link    *syncer.LinkResult `json:"link,omitempty"`
	Message string             `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
	Code    string             `json:"code,omitempty"`
	Path    string             `json:"path,omitempty"`
}

// Writer writes responses to an underlying stream.
type Writer struct {
	w io.Writer
}

// New returns a Writer on w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// JSON writes any value as indented JSON.
func (o *Writer) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success writes a successful single-task response.
func (o *Writer) Success(t *task.Task, message string) error {
	return o.JSON(Response{Success: true, Task: t, Message: message})
}

// Tasks writes a task array directly (no wrapper) so it pipes into jq '.[]'.
func (o *Writer) Tasks(tasks []*task.Task) error {
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return o.JSON(tasks)
}

// SyncResult writes a run result. Success mirrors Result.OK.
func (o *Writer) SyncResult(r *syncer.Result) error {
	return o.JSON(Response{Success: r.OK(), Result: r})
}

// SyncFailure writes a run that stopped with err, keeping the partial result.
func (o *Writer) SyncFailure(r *syncer.Result, code string, err error) error {
	return o.JSON(Response{Success: false, Result: r, Error: err.Error(), Code: code})
}

// LinkResult writes the outcome of link or unlink.
func (o *Writer) LinkResult(r *syncer.LinkResult) error {
	return o.JSON(Response{Success: true, Link: r})
}

// Message writes a success response with just a message.
func (o *Writer) Message(message string) error {
	return o.JSON(Response{Success: true, Message: message})
}

// Path writes a success response naming a file.
func (o *Writer) Path(message, path string) error {
	return o.JSON(Response{Success: true, Message: message, Path: path})
}

// Error writes an error response and returns an error for command handling.
func (o *Writer) Error(code, message string) error {
	_ = o.JSON(Response{Success: false, Error: message, Code: code})
	return fmt.Errorf("%s", message)
}

// ErrorFrom writes an error response from an existing error.
func (o *Writer) ErrorFrom(code string, err error) error {
	return o.Error(code, err.Error())
}
