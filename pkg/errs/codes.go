package errs

type Code string

const (
	CodeUnknown              Code = "UNKNOWN"
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodeInvalidConversation  Code = "INVALID_CONVERSATION"
	CodeNotParticipant       Code = "NOT_PARTICIPANT"
	CodeUploadFailed         Code = "UPLOAD_FAILED"
	CodeStoreUnavailable     Code = "STORE_UNAVAILABLE"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
)
