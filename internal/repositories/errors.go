package repositories

import "errors"

var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrGroupNotFound        = errors.New("group not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")

	ErrAlreadyAcknowledged = errors.New("already acknowledged by this user")
	ErrAlreadyMember       = errors.New("user is already a participant")
	ErrAlreadyAdmin        = errors.New("user is already an admin")
	ErrDuplicateGroupName  = errors.New("creator already owns a group with this name")
	ErrLastAdminCannotLeave = errors.New("the only admin cannot leave the group voluntarily")
)
