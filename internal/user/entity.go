// AngelaMos | 2026
// entity.go

package user

import (
	"time"

	"github.com/deez125/novix-gateway/internal/access"
)

type User struct {
	ID                   string      `db:"id"`
	AuthID               *string     `db:"auth_id"`
	DisplayName          string      `db:"display_name"`
	Email                string      `db:"email"`
	PlexUsername         *string     `db:"plex_username"`
	PlexUserID           *string     `db:"plex_user_id"`
	StripeCustomerID     *string     `db:"stripe_customer_id"`
	StripeSubscriptionID *string     `db:"stripe_subscription_id"`
	Tier                 access.Tier `db:"tier"`
	SubscriptionStatus   string      `db:"subscription_status"`
	CurrentPeriodEnd     *time.Time  `db:"current_period_end"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
	StatusKicked    = "kicked"
)

func (u *User) IsAdmin() bool {
	return u.Tier.IsAdmin()
}

func (u *User) IsActive() bool {
	return u.SubscriptionStatus == StatusActive
}

func (u *User) HasPlexID() bool {
	return u.PlexUserID != nil && *u.PlexUserID != ""
}

func (u *User) HasSubscription() bool {
	return u.StripeSubscriptionID != nil && *u.StripeSubscriptionID != ""
}

// Member is the access view of the user. Email prefers the address the
// member signed up with.
func (u *User) Member() access.Member {
	m := access.Member{UserID: u.ID, Email: u.Email}
	if u.PlexUserID != nil {
		m.PlexUserID = *u.PlexUserID
	}
	return m
}

// Field is one column of a UserPatch. The zero value leaves the column
// untouched; Null writes SQL NULL.
type Field[T any] struct {
	set   bool
	value *T
}

func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: &v}
}

func Null[T any]() Field[T] {
	return Field[T]{set: true}
}

func (f Field[T]) IsSet() bool {
	return f.set
}

func (f Field[T]) arg() any {
	if f.value == nil {
		return nil
	}
	return *f.value
}

// UserPatch carries set-to values; unset fields are not written.
type UserPatch struct {
	AuthID               Field[string]
	DisplayName          Field[string]
	Email                Field[string]
	PlexUsername         Field[string]
	PlexUserID           Field[string]
	StripeCustomerID     Field[string]
	StripeSubscriptionID Field[string]
	Tier                 Field[access.Tier]
	SubscriptionStatus   Field[string]
	CurrentPeriodEnd     Field[time.Time]
}

type column struct {
	name string
	arg  any
}

func (p UserPatch) columns() []column {
	var cols []column
	add := func(name string, set bool, arg any) {
		if set {
			cols = append(cols, column{name: name, arg: arg})
		}
	}
	add("auth_id", p.AuthID.set, p.AuthID.arg())
	add("display_name", p.DisplayName.set, p.DisplayName.arg())
	add("email", p.Email.set, p.Email.arg())
	add("plex_username", p.PlexUsername.set, p.PlexUsername.arg())
	add("plex_user_id", p.PlexUserID.set, p.PlexUserID.arg())
	add("stripe_customer_id", p.StripeCustomerID.set, p.StripeCustomerID.arg())
	add("stripe_subscription_id", p.StripeSubscriptionID.set, p.StripeSubscriptionID.arg())
	if p.Tier.set {
		var tier any
		if p.Tier.value != nil {
			tier = string(*p.Tier.value)
		}
		cols = append(cols, column{name: "tier", arg: tier})
	}
	add("subscription_status", p.SubscriptionStatus.set, p.SubscriptionStatus.arg())
	add("current_period_end", p.CurrentPeriodEnd.set, p.CurrentPeriodEnd.arg())
	return cols
}

func (p UserPatch) IsEmpty() bool {
	return len(p.columns()) == 0
}

// ApplyTo writes the set fields of p onto u.
func (p UserPatch) ApplyTo(u *User) {
	applyPtr(p.AuthID, &u.AuthID)
	applyVal(p.DisplayName, &u.DisplayName)
	applyVal(p.Email, &u.Email)
	applyPtr(p.PlexUsername, &u.PlexUsername)
	applyPtr(p.PlexUserID, &u.PlexUserID)
	applyPtr(p.StripeCustomerID, &u.StripeCustomerID)
	applyPtr(p.StripeSubscriptionID, &u.StripeSubscriptionID)
	applyVal(p.Tier, &u.Tier)
	applyVal(p.SubscriptionStatus, &u.SubscriptionStatus)
	applyPtr(p.CurrentPeriodEnd, &u.CurrentPeriodEnd)
}

func applyPtr[T any](f Field[T], dst **T) {
	if !f.set {
		return
	}
	if f.value == nil {
		*dst = nil
		return
	}
	v := *f.value
	*dst = &v
}

func applyVal[T any](f Field[T], dst *T) {
	if f.set && f.value != nil {
		*dst = *f.value
	}
}
