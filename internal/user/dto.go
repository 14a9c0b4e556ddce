// AngelaMos | 2026
// dto.go

package user

import (
	"time"
)

type CreateUserRequest struct {
	DisplayName  string `json:"display_name"  validate:"required,min=1,max=100"`
	Email        string `json:"email"         validate:"required,email,max=255"`
	PlexUsername string `json:"plex_username" validate:"required,max=100"`
	Tier         string `json:"tier"          validate:"omitempty,oneof=hd 4k admin"`
}

// UpdateUserRequest distinguishes absent fields from explicit nulls for
// plex_user_id so an operator can unlink a member.
type UpdateUserRequest struct {
	DisplayName  *string        `json:"display_name,omitempty"  validate:"omitempty,min=1,max=100"`
	Email        *string        `json:"email,omitempty"         validate:"omitempty,email,max=255"`
	PlexUsername *string        `json:"plex_username,omitempty" validate:"omitempty,max=100"`
	PlexUserID   OptionalString `json:"plex_user_id"`
	Tier         *string        `json:"tier,omitempty"          validate:"omitempty,oneof=hd 4k admin"`
}

type UserResponse struct {
	ID                   string     `json:"id"`
	DisplayName          string     `json:"display_name"`
	Email                string     `json:"email"`
	PlexUsername         *string    `json:"plex_username"`
	PlexUserID           *string    `json:"plex_user_id"`
	StripeCustomerID     *string    `json:"stripe_customer_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	Tier                 string     `json:"tier"`
	SubscriptionStatus   string     `json:"subscription_status"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type ListUsersParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Search   string `json:"search"`
	Status   string `json:"status"`
	Tier     string `json:"tier"`
}

func (p *ListUsersParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	if p.PageSize > 200 {
		p.PageSize = 200
	}
}

func (p *ListUsersParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:                   u.ID,
		DisplayName:          u.DisplayName,
		Email:                u.Email,
		PlexUsername:         u.PlexUsername,
		PlexUserID:           u.PlexUserID,
		StripeCustomerID:     u.StripeCustomerID,
		StripeSubscriptionID: u.StripeSubscriptionID,
		Tier:                 u.Tier.String(),
		SubscriptionStatus:   u.SubscriptionStatus,
		CurrentPeriodEnd:     u.CurrentPeriodEnd,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func ToUserResponseList(users []User) []UserResponse {
	responses := make([]UserResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, ToUserResponse(&u))
	}
	return responses
}
