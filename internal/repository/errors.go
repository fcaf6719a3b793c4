package repository

import "errors"

var (
	ErrFollowNotFound   = errors.New("follow relation not found")
	ErrFollowExists     = errors.New("follow relation already active")
	ErrFollowCancelling = errors.New("follow relation is being cancelled")
	ErrFolloweeMismatch = errors.New("followee does not match follow relation")
	ErrUserNotFound     = errors.New("user not found")
)
