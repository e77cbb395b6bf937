package core

import (
	"WaDesk/entity"
)

func (c *Core) CreateLine(lineID string) error {
	_, err := c.sessions.CreateLine(lineID)
	return err
}

func (c *Core) SessionStatuses() []entity.SessionInfo {
	return c.sessions.StatusAll()
}

func (c *Core) SessionQr(lineID string) (string, bool, error) {
	return c.sessions.Qr(lineID)
}

func (c *Core) LogoutLine(lineID string) error {
	return c.sessions.Logout(lineID)
}
