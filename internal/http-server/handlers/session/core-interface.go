package session

import "WaDesk/entity"

// Core is the session surface the handlers consume.
type Core interface {
	CreateLine(lineID string) error
	SessionStatuses() []entity.SessionInfo
	SessionQr(lineID string) (string, bool, error)
	LogoutLine(lineID string) error
	Send(lineID, destination, text string) error
}
