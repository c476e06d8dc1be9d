package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ErrInvalidRequest struct {
	error
}

// NewErrInvalidRequest flattens the field errors of err into one message.
func NewErrInvalidRequest(err error) *ErrInvalidRequest {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ErrInvalidRequest{err}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' rule", fe.Field(), fe.Tag()))
	}
	return &ErrInvalidRequest{errors.New(strings.Join(msgs, "; "))}
}
