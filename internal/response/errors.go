package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden    ErrCode = "FORBIDDEN"
	ErrNotFormOwner ErrCode = "NOT_FORM_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation    ErrCode = "VALIDATION_ERROR"
	ErrInvalidID     ErrCode = "INVALID_ID"
	ErrInvalidAnswer ErrCode = "INVALID_ANSWER_SHAPE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrSessionClosed    ErrCode = "SESSION_CLOSED"
	ErrFormNotAccepting ErrCode = "FORM_NOT_ACCEPTING_RESPONSES"
	ErrFormNotDraft     ErrCode = "FORM_NOT_DRAFT"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrStorageUnstable  ErrCode = "STORAGE_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotFormOwner:
		return "You are not the owner of this form."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidAnswer:
		return "The answer does not match the question's expected shape."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."
	case ErrConflict:
		return "The resource already exists."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrSessionClosed:
		return "This session has already been finalized."
	case ErrFormNotAccepting:
		return "This form is not currently accepting responses."
	case ErrFormNotDraft:
		return "This form is not in draft status."
	case ErrNoQuestions:
		return "This form has no questions."
	case ErrStorageUnstable:
		return "Storage is temporarily unavailable. Please retry."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
