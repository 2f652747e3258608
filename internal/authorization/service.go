package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/meterbill/internal/session"
)

type Service interface {
	Authorize(ctx context.Context, sess session.Session, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
