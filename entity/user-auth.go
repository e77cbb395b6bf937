package entity

import (
	"WaDesk/internal/lib/validate"
	"net/http"
)

// UserAuth identifies an authenticated agent or operator on the API surface.
type UserAuth struct {
	Username string `json:"username" bson:"username" validate:"required"`
	Name     string `json:"name" bson:"name" validate:"omitempty"`
	Role     string `json:"role" bson:"role" validate:"omitempty"`
	Token    string `json:"token" bson:"token" validate:"required,min=1"`
}

func (u *UserAuth) Bind(_ *http.Request) error {
	return validate.Struct(u)
}

// IsAdmin reports whether the user may take the operator override paths.
func (u *UserAuth) IsAdmin() bool {
	return u.Role == "admin"
}
