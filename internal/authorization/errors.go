package authorization

import "errors"

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidActor    = errors.New("invalid_actor")
	ErrInvalidBusiness = errors.New("invalid_business")
	ErrInvalidObject   = errors.New("invalid_object")
	ErrInvalidAction   = errors.New("invalid_action")
)
