package client

import (
	"errors"

	"github.com/dmitrijs2005/notesync/internal/common"
)

var (
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized is common.ErrorUnauthorized, so either can be matched.
	ErrUnauthorized = common.ErrorUnauthorized
	ErrNotLoggedIn  = errors.New("not logged in")
)
