package domain

import "strings"

// ErrorCategory is the user-presentable class of a failed operation
type ErrorCategory string

const (
	ErrorCategoryNothingToSave    ErrorCategory = "nothing_to_save"
	ErrorCategoryNotFound         ErrorCategory = "not_found"
	ErrorCategoryPermissionDenied ErrorCategory = "permission_denied"
	ErrorCategoryConnection       ErrorCategory = "connection"
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryGeneric          ErrorCategory = "generic"
)

var categoryMessages = map[ErrorCategory]string{
	ErrorCategoryNothingToSave:    "Nothing to save: no save files were found at the local path",
	ErrorCategoryNotFound:         "The requested save data does not exist on the server",
	ErrorCategoryPermissionDenied: "Permission denied while accessing the save files",
	ErrorCategoryConnection:       "Could not reach the storage server",
	ErrorCategoryTimeout:          "The operation did not finish in time",
}

// order matters: the first matching rule wins
var categoryRules = []struct {
	category ErrorCategory
	needles  []string
}{
	{ErrorCategoryNothingToSave, []string{"nothing to save", "no files to upload", "no save files", "local path does not exist", "source is empty"}},
	{ErrorCategoryNotFound, []string{"directory not found", "not found on remote", "no such file", "does not exist", "not found"}},
	{ErrorCategoryPermissionDenied, []string{"permission denied", "access is denied", "access denied"}},
	{ErrorCategoryConnection, []string{"connection refused", "connection reset", "network is unreachable", "no route to host", "i/o timeout", "failed to connect"}},
}

// NormalizeError classifies a raw worker error and returns the message shown to users.
// Generic failures keep the raw text so the user still sees what went wrong.
func NormalizeError(raw string) (ErrorCategory, string) {
	lowered := strings.ToLower(raw)
	for _, rule := range categoryRules {
		for _, needle := range rule.needles {
			if strings.Contains(lowered, needle) {
				return rule.category, categoryMessages[rule.category]
			}
		}
	}
	msg := strings.TrimSpace(raw)
	if msg == "" {
		msg = "Operation failed"
	}
	return ErrorCategoryGeneric, msg
}

// MessageFor returns the canonical message of a category
func MessageFor(category ErrorCategory) string {
	if msg, ok := categoryMessages[category]; ok {
		return msg
	}
	return "Operation failed"
}
