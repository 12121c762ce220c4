package model

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the slice of the external user service this engine relies on.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	IsPremium bool   `json:"is_premium"`
	IsBanned  bool   `json:"is_banned"`
}
