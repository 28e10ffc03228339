package repositories

import "errors"

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotParticipant  = errors.New("user is not a chat participant")
	ErrNotSender       = errors.New("user is not the message sender")
	ErrMessageDeleted  = errors.New("message already deleted")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrInvalidKind     = errors.New("unknown message kind")
	ErrSelfChat        = errors.New("cannot create chat with self")
)
