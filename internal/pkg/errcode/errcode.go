package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrInvalid
	ErrNotFound
	ErrConfiguration
	ErrTransient
	ErrModel
	ErrEmptyDocument
	ErrInvalidQuery
	ErrGenerationUnavailable
	ErrInternal
)
