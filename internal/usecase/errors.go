package usecase

import "errors"

var (
	// ErrAlreadySucceeded rejects a manual retry of a delivered notification.
	ErrAlreadySucceeded = errors.New("delivery already succeeded")

	// ErrMaxAttemptsReached rejects a manual retry once the attempt budget is spent.
	ErrMaxAttemptsReached = errors.New("delivery reached max attempts")
)

type DomainError struct {
	Code    string
	Message string
	Fields  []ValidationError
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

type TechnicalError struct {
	Code    string
	Message string
	Err     error
}

func (e *TechnicalError) Error() string {
	return e.Message
}

func (e *TechnicalError) Unwrap() error {
	return e.Err
}

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}
