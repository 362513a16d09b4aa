package httputil

// Machine-readable error codes returned alongside human messages so API
// clients can branch without string matching.
const (
	CodeInvalidRequestBody = "invalid_request_body"
	CodeValidationFailed   = "validation_failed"
	CodeInternalError      = "internal_error"
	CodeTooManyRequests    = "too_many_requests"
	CodeCooldownActive     = "cooldown_active"

	// Registration
	CodeEmailRequired      = "email_required"
	CodeInvalidEmailFormat = "invalid_email_format"
	CodeEmailAlreadyExists = "email_already_exists"
	CodePasswordRequired   = "password_required"
	CodePasswordTooShort   = "password_too_short"
	CodePasswordTooWeak    = "password_too_weak"

	// Login / tokens
	CodeInvalidCredentials   = "invalid_credentials"
	CodeInvalidAuthHeader    = "invalid_auth_header"
	CodeMissingAuth          = "missing_auth"
	CodeTokenExpired         = "token_expired"
	CodeInvalidToken         = "invalid_token"
	CodeInvalidTokenUserID   = "invalid_token_user_id"
	CodeRefreshTokenRequired = "refresh_token_required"
	CodeInvalidRefreshToken  = "invalid_refresh_token"

	// Email verification
	CodeVerificationTokenRequired = "verification_token_required"
	CodeVerificationFailed        = "verification_failed"
	CodeAlreadyVerified           = "already_verified"

	// Password lifecycle
	CodeInvalidResetToken    = "invalid_reset_token"
	CodeIncorrectOldPassword = "incorrect_old_password"
	CodeSamePassword         = "same_password"

	// Profile
	CodeEmailTaken      = "email_taken"
	CodeUsernameTaken   = "username_taken"
	CodeMixedUpdateMode = "mixed_update_mode"
	CodeInvalidFileType = "invalid_file_type"
	CodeFileTooLarge    = "file_too_large"
	CodeUserNotFound    = "user_not_found"
)
