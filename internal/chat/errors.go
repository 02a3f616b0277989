package chat

import "errors"

// Failure reasons returned by the domain core. All of them are recoverable:
// callers render them, nothing aborts the process.
var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("insufficient role for this operation")
	ErrCannotRemoveOwner    = errors.New("cannot remove the group owner")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrRoomFull             = errors.New("room is full")
	ErrAlreadyExists        = errors.New("already exists")
	ErrNotAParticipant      = errors.New("not a participant of this room")
	ErrTargetNotParticipant = errors.New("target is not a participant of this room")
	ErrCorruptState         = errors.New("corrupt state in storage")
)
