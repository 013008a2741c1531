package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20999: Configuration document errors
// 21000-21999: Submission errors
// 22000-22999: Environment provisioning errors
// 23000-23999: Shell execution errors
// 24000-24999: Report & marker storage errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Configuration Errors (20000-20999) ==========

	ConfigReadFailed   ErrorCode = 20000
	ConfigParseFailed  ErrorCode = 20001
	ConfigEntryMissing ErrorCode = 20002
	ConfigInvalid      ErrorCode = 20003
	TemplateInvalid    ErrorCode = 20004
	DuplicateName      ErrorCode = 20005

	// ========== Submission Errors (21000-21999) ==========

	SubmissionIDInvalid   ErrorCode = 21001
	AssignmentNotFound    ErrorCode = 21002
	LanguageNotSupported  ErrorCode = 21003
	ProgramFileMissing    ErrorCode = 21004
	ProgramNotExecutable  ErrorCode = 21005
	SubmissionShapeBroken ErrorCode = 21007

	// ========== Environment Errors (22000-22999) ==========

	EnvironmentCreateFailed ErrorCode = 22000
	EnvironmentRemoveFailed ErrorCode = 22001

	// ========== Execution Errors (23000-23999) ==========

	CommandNotFound  ErrorCode = 23000
	ShellStartFailed ErrorCode = 23001

	// ========== Report & Storage Errors (24000-24999) ==========

	ReportWriteFailed ErrorCode = 24000
	MarkerStoreFailed ErrorCode = 24001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal error",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed: "Validation failed",

	// Configuration
	ConfigReadFailed:   "Cannot read configuration file",
	ConfigParseFailed:  "Cannot parse configuration file",
	ConfigEntryMissing: "Configuration file misses its top-level entry",
	ConfigInvalid:      "Invalid configuration",
	TemplateInvalid:    "Invalid command template",
	DuplicateName:      "Duplicate name in configuration",

	// Submission
	SubmissionIDInvalid:   "Submission id is not filesystem safe",
	AssignmentNotFound:    "Submission name is not defined as assignment name",
	LanguageNotSupported:  "Language is not defined",
	ProgramFileMissing:    "Program file does not exist",
	ProgramNotExecutable:  "Program file is not executable",
	SubmissionShapeBroken: "Submission entry has an unsupported shape",

	// Environment
	EnvironmentCreateFailed: "Failure to create environment",
	EnvironmentRemoveFailed: "Failure to remove environment",

	// Execution
	CommandNotFound:  "Command not found",
	ShellStartFailed: "Cannot start shell",

	// Report & storage
	ReportWriteFailed: "Failed to write report",
	MarkerStoreFailed: "Checked-marker store failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// ExitCode returns the process exit status recommended for an error that aborts the run.
func (c ErrorCode) ExitCode() int {
	switch {
	case c == Success:
		return 0
	case c >= 20000 && c < 21000: // Configuration errors
		return 2
	default:
		return 1
	}
}
