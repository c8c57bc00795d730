package models

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity is the authenticated caller as established by the auth middleware.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
