package core

// # Error Codes Reference
//
// Errors surfaced to node users carry a code for support reference. Typed
// errors are matched first (errors.As / errors.Is), then the error text is
// matched case-insensitively against known patterns.
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Invalid source: a source descriptor is empty or ambiguous
//	SRC002 - Download failed: a remote source could not be fetched
//	SRC003 - Download too large: a remote source exceeds the size limit
//
// # Format Errors (FMT001-FMT099)
//
//	FMT001 - Unsupported format: no reader handles the file
//	FMT002 - Malformed text: a quoted field is never closed
//	FMT003 - Unknown encoding: the encoding option is not recognized
//	FMT004 - Sheet not found: the requested worksheet does not exist
//
// # Combination Errors (CMB001-CMB099)
//
//	CMB001 - Incompatible columns: files do not share one column layout
//	CMB002 - Row count mismatch: cbind needs equal row counts
//
// # Write Errors (WRT001-WRT099)
//
//	WRT001 - Write target: the output directory is not writable
//	WRT002 - Invalid table set: missing or duplicate table names
//
// # Option Errors (OPT001-OPT099)
//
//	OPT001 - Unknown option: an option key is not recognized
//	OPT002 - Invalid option: an option value is out of range
//	OPT003 - Unknown strategy: the combine strategy is not recognized
//	OPT004 - Unknown write format: the output format is not recognized
//
// # Evaluation Errors (EVAL001-EVAL099)
//
//	EVAL001 - System busy: every evaluation slot is taken
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Node state not found
//	REQ002 - Request cancelled
//	REQ003 - Request timed out
//	REQ004 - Malformed request body
//	REQ005 - Request body too large
//	REQ006 - Invalid node id
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Invalid filename
//	FILE002 - Unknown mount
//	FILE003 - Path escapes mount
//	FILE004 - File not found
//	FILE005 - Path outside the allowed directories
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/JonMunkholm/tableio/internal/acquire"
	"github.com/JonMunkholm/tableio/internal/eval"
	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgInvalidSource = UserMessage{
		Message: "A source is empty or ambiguous",
		Action:  "Give each source exactly one path or URL",
		Code:    "SRC001",
	}
	msgDownloadFailed = UserMessage{
		Message: "A remote source could not be downloaded",
		Action:  "Check the URL and that the server is reachable",
		Code:    "SRC002",
	}
	msgDownloadTooLarge = UserMessage{
		Message: "A remote source exceeds the download size limit",
		Action:  "Download the file manually and upload it instead",
		Code:    "SRC003",
	}
	msgUnsupportedFormat = UserMessage{
		Message: "This file format is not supported",
		Action:  "Convert the file to CSV, Excel, Parquet or Feather",
		Code:    "FMT001",
	}
	msgSheetNotFound = UserMessage{
		Message: "The requested worksheet does not exist",
		Action:  "Check the sheet name or index",
		Code:    "FMT004",
	}
	msgIncompatibleColumns = UserMessage{
		Message: "The files do not share the same columns",
		Action:  "Use the first-file or column-bind strategy, or align the headers",
		Code:    "CMB001",
	}
	msgRowCountMismatch = UserMessage{
		Message: "The files have different row counts",
		Action:  "Column binding needs the same number of rows in every file",
		Code:    "CMB002",
	}
	msgWriteTarget = UserMessage{
		Message: "The output location cannot be written",
		Action:  "Choose a directory you have write access to",
		Code:    "WRT001",
	}
	msgInvalidTableSet = UserMessage{
		Message: "The tables to write are missing or share a name",
		Action:  "Give every input table a unique name",
		Code:    "WRT002",
	}
	msgUnknownOption = UserMessage{
		Message: "An option is not recognized",
		Action:  "Remove the option or check its spelling",
		Code:    "OPT001",
	}
	msgInvalidOption = UserMessage{
		Message: "An option has an invalid value",
		Action:  "Check the option values and try again",
		Code:    "OPT002",
	}
	msgBusy = UserMessage{
		Message: "System is busy running other nodes",
		Action:  "Please wait a moment and try again",
		Code:    "EVAL001",
	}
	msgStateNotFound = UserMessage{
		Message: "No saved state for this node",
		Action:  "Configure the node and save it first",
		Code:    "REQ001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ002",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "REQ003",
	}
	msgInvalidNodeID = UserMessage{
		Message: "The node id is not valid",
		Action:  "Use letters, digits, '.', '_' or '-' (at most 128 characters)",
		Code:    "REQ006",
	}
	msgInvalidFilename = UserMessage{
		Message: "The file name is not valid",
		Action:  "Rename the file and upload it again",
		Code:    "FILE001",
	}
	msgMountNotFound = UserMessage{
		Message: "Unknown file location",
		Action:  "Pick one of the configured locations",
		Code:    "FILE002",
	}
	msgOutsideMount = UserMessage{
		Message: "The path is outside the allowed location",
		Action:  "Pick a file inside the location",
		Code:    "FILE003",
	}
	msgOutsideRoot = UserMessage{
		Message: "The path is outside the directories this server may use",
		Action:  "Upload the file, pick it from a mount, or write inside the output directory",
		Code:    "FILE005",
	}
	msgFileNotFound = UserMessage{
		Message: "File not found",
		Action:  "Check that the file exists and the path is correct",
		Code:    "FILE004",
	}
)

// typedError maps an error type or sentinel to a user message.
type typedError struct {
	match func(error) bool
	msg   UserMessage
}

func asType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func combineReason(reason string) func(error) bool {
	return func(err error) bool {
		var ce *table.CombineError
		return errors.As(err, &ce) && ce.Reason == reason
	}
}

// typedErrors is checked in order before any text pattern. More specific
// entries come first: ErrTooLarge is wrapped inside a DownloadError.
var typedErrors = []typedError{
	{is(acquire.ErrTooLarge), msgDownloadTooLarge},
	{asType[*acquire.DownloadError], msgDownloadFailed},
	{asType[*format.InvalidSourceError], msgInvalidSource},
	{asType[*format.UnsupportedFormatError], msgUnsupportedFormat},
	{is(eval.ErrSheetNotFound), msgSheetNotFound},
	{combineReason(table.ReasonIncompatibleColumns), msgIncompatibleColumns},
	{combineReason(table.ReasonRowCountMismatch), msgRowCountMismatch},
	{asType[*eval.WriteTargetError], msgWriteTarget},
	{is(plan.ErrInvalidTableSet), msgInvalidTableSet},
	{is(plan.ErrUnknownOption), msgUnknownOption},
	{is(plan.ErrInvalidOption), msgInvalidOption},
	{is(ErrTooManyEvaluations), msgBusy},
	{is(ErrStateNotFound), msgStateNotFound},
	{is(ErrInvalidNodeID), msgInvalidNodeID},
	{is(acquire.ErrInvalidFilename), msgInvalidFilename},
	{is(acquire.ErrMountNotFound), msgMountNotFound},
	{is(acquire.ErrOutsideMount), msgOutsideMount},
	{is(acquire.ErrOutsideRoot), msgOutsideRoot},
	{is(fs.ErrNotExist), msgFileNotFound},
	{is(context.Canceled), msgCancelled},
	{is(context.DeadlineExceeded), msgTimeout},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages for errors that carry no type. The first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "unterminated quoted field",
		msg: UserMessage{
			Message: "A quoted field is never closed",
			Action:  "Check the quote character option or fix the file",
			Code:    "FMT002",
		},
	},
	{
		pattern: "unknown encoding",
		msg: UserMessage{
			Message: "The text encoding is not recognized",
			Action:  "Use an encoding name such as UTF-8 or latin1",
			Code:    "FMT003",
		},
	},
	{
		pattern: "unknown combine strategy",
		msg: UserMessage{
			Message: "The combine strategy is not recognized",
			Action:  "Use auto, rbind, cbind or first",
			Code:    "OPT003",
		},
	},
	{
		pattern: "unknown write format",
		msg: UserMessage{
			Message: "The output format is not recognized",
			Action:  "Use csv, xlsx, parquet or feather",
			Code:    "OPT004",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Check the request fields and try again",
			Code:    "REQ004",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The upload is too large",
			Action:  "Split the file or raise the upload size limit",
			Code:    "REQ005",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Typed
// errors win over text patterns; unmatched errors map to ERR000.
//
// Example:
//
//	_, err := svc.ReadNode(ctx, state)
//	msg := MapError(err)
//	// msg.Code == "CMB001" when rbind found different columns
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, te := range typedErrors {
		if te.match(err) {
			return te.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
