package app

import "fmt"

// DomainError is the error shape every service operation returns for
// expected failures: the HTTP status it maps to, a stable machine code
// and a human message. Details carries structured context for 422s.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s (%d)", e.Code, e.Message, e.Status)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
