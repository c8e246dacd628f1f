package handlers

// Common error messages shared across handlers
const (
	ErrMsgInvalidRequestBody = "Invalid request body"
	ErrMsgUnauthorized       = "Unauthorized"
	ErrMsgInvalidCredentials = "Invalid email or access code"
	ErrMsgInternal           = "Internal server error"
)

// Machine-readable error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidOTP         = "INVALID_OTP"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidMarks       = "INVALID_MARKS"
	CodeMarksRequired      = "MARKS_REQUIRED"
	CodeReasonRequired     = "REASON_REQUIRED"
	CodeInvalidDate        = "INVALID_DATE"
	CodeMissingColumn      = "MISSING_COLUMN"
	CodeInvalidCSV         = "INVALID_CSV"
	CodeNotFound           = "NOT_FOUND"
	CodeNotOwned           = "NOT_OWNED"
	CodeRecordLocked       = "RECORD_LOCKED"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeStatusChanged      = "STATUS_CHANGED"
	CodeQuotaExceeded      = "QUOTA_EXCEEDED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// API path constants
const (
	APIBasePath     = "/api/v1"
	AuthAPIBasePath = APIBasePath + "/auth"
	FacultyBasePath = APIBasePath + "/faculty"
	AdminBasePath   = APIBasePath + "/admin"
)

// Audit action constants
const (
	AuditActionOTPSendAll        = "otp.send_all"
	AuditActionOTPSend           = "otp.send"
	AuditActionEditApprove       = "edit_request.approve"
	AuditActionEditDisapprove    = "edit_request.disapprove"
	AuditActionEditApproveAll    = "edit_request.approve_all"
	AuditActionDeadlineSet       = "deadline.set"
	AuditActionDeadlinePoll      = "deadline.poll"
	AuditActionDeadlineRemind    = "deadline.remind"
	AuditActionCompletionReset   = "completion.reset"
	AuditActionRecordsImport     = "records.import"
	AuditActionAdminLogin        = "admin.login"
	AuditActionAdminLoginFailure = "admin.login.failure"
)
