package model

import "strings"

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every problem found in one input.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// OrNil avoids returning a typed nil inside an error interface.
func (errs ValidationErrors) OrNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}
