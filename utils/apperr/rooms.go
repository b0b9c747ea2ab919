package apperr

import "fmt"

func RoomNotFound(code string) *Error {
	return NotFound(CodeRoomNotFound, fmt.Sprintf("room %s does not exist", code)).
		WithDetail("room_code", code)
}

func RoomFull(code string, maxMembers int) *Error {
	return Conflict(CodeRoomFull, fmt.Sprintf("room %s is full", code)).
		WithDetail("room_code", code).
		WithDetail("max_members", maxMembers)
}

// RoomNotAvailable is returned when a room exists but its status does not allow the operation
func RoomNotAvailable(code string, status any, allowed any) *Error {
	return Conflict(CodeRoomNotAvailable, fmt.Sprintf("room %s is not accepting players right now", code)).
		WithDetail("room_code", code).
		WithDetail("status", status).
		WithDetail("allowed_statuses", allowed)
}

func RoomCreation(attempts int) *Error {
	return Conflict(CodeRoomCreationFailed, "could not allocate a unique room code").
		WithDetail("attempts", attempts)
}

func NotHost(code, userID string) *Error {
	return Forbidden(CodeNotHost, "only the host can do that").
		WithDetail("room_code", code).
		WithDetail("user_id", userID)
}

func NotAMember(code, userID string) *Error {
	return NotFound(CodeNotAMember, fmt.Sprintf("user %s is not in room %s", userID, code)).
		WithDetail("room_code", code).
		WithDetail("user_id", userID)
}

func InvalidPayload(event, reason string) *Error {
	return Validation(CodeInvalidPayload, reason).WithDetail("event", event)
}
