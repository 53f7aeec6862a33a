package models

// UserProfile - профиль из GET /api/users/me.
type UserProfile struct {
	ID       uint64 `json:"id" validate:"required"`
	Nickname string `json:"nickname" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Image    string `json:"image,omitempty"`
	Role     string `json:"role" validate:"required"`
	Bio      string `json:"bio,omitempty"`
}
