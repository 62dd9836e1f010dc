package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role names.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserRecord is the per-username document persisted in the record store.
// A record with an empty HashedPassword is a temporary account.
type UserRecord struct {
	Username            string                     `json:"username"`
	HashedPassword      string                     `json:"hashed_password"`
	Role                string                     `json:"role"`
	Subscription        bool                       `json:"subscription"`
	ContainerID         string                     `json:"container_id"`
	TokenCount          map[string]int64           `json:"token_count"`
	TokenUsage          map[string]decimal.Decimal `json:"token_usage"`
	CurrentUsage        map[string]decimal.Decimal `json:"current_usage"`
	LastUpdateTimestamp int64                      `json:"last_update_timestamp"`

	Email      string                 `json:"email,omitempty"`
	FamilyName string                 `json:"family_name,omitempty"`
	GivenName  string                 `json:"given_name,omitempty"`
	Template   map[string]interface{} `json:"template,omitempty"`
}

// NewUserRecord returns a temporary account with zero usage and the given grants.
func NewUserRecord(username string, grants map[string]int64) *UserRecord {
	r := &UserRecord{
		Username:     username,
		Role:         RoleUser,
		TokenCount:   make(map[string]int64, len(grants)),
		TokenUsage:   make(map[string]decimal.Decimal, len(grants)),
		CurrentUsage: make(map[string]decimal.Decimal, len(grants)),
	}
	for m, n := range grants {
		r.TokenCount[m] = n
		r.TokenUsage[m] = decimal.Zero
		r.CurrentUsage[m] = decimal.Zero
	}
	return r
}

// IsTemporary reports whether the account was created without a password.
func (r *UserRecord) IsTemporary() bool {
	return r.HashedPassword == ""
}

// IsAdmin reports whether the record carries the admin role.
func (r *UserRecord) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// LastUpdate returns LastUpdateTimestamp as a time, or the zero time if never set.
func (r *UserRecord) LastUpdate() time.Time {
	if r.LastUpdateTimestamp == 0 {
		return time.Time{}
	}
	return time.Unix(r.LastUpdateTimestamp, 0).UTC()
}

// EnsureMaps initializes nil maps, e.g. after decoding an older record.
func (r *UserRecord) EnsureMaps() {
	if r.TokenCount == nil {
		r.TokenCount = make(map[string]int64)
	}
	if r.TokenUsage == nil {
		r.TokenUsage = make(map[string]decimal.Decimal)
	}
	if r.CurrentUsage == nil {
		r.CurrentUsage = make(map[string]decimal.Decimal)
	}
}

// Clone returns a deep copy of the record.
func (r *UserRecord) Clone() *UserRecord {
	c := *r
	c.TokenCount = make(map[string]int64, len(r.TokenCount))
	for k, v := range r.TokenCount {
		c.TokenCount[k] = v
	}
	c.TokenUsage = make(map[string]decimal.Decimal, len(r.TokenUsage))
	for k, v := range r.TokenUsage {
		c.TokenUsage[k] = v
	}
	c.CurrentUsage = make(map[string]decimal.Decimal, len(r.CurrentUsage))
	for k, v := range r.CurrentUsage {
		c.CurrentUsage[k] = v
	}
	if r.Template != nil {
		c.Template = make(map[string]interface{}, len(r.Template))
		for k, v := range r.Template {
			c.Template[k] = v
		}
	}
	return &c
}

// UserView is the client-facing projection of a record, without the password hash.
type UserView struct {
	Username            string                     `json:"username"`
	Role                string                     `json:"role"`
	Subscription        bool                       `json:"subscription"`
	ContainerID         string                     `json:"mid"`
	TokenCount          map[string]int64           `json:"token_count"`
	TokenUsage          map[string]decimal.Decimal `json:"token_usage"`
	CurrentUsage        map[string]decimal.Decimal `json:"current_usage"`
	LastUpdateTimestamp int64                      `json:"last_update_timestamp"`
	Email               string                     `json:"email,omitempty"`
	FamilyName          string                     `json:"family_name,omitempty"`
	GivenName           string                     `json:"given_name,omitempty"`
	Template            map[string]interface{}     `json:"template,omitempty"`
}

// View projects the record for API responses.
func (r *UserRecord) View() UserView {
	return UserView{
		Username:            r.Username,
		Role:                r.Role,
		Subscription:        r.Subscription,
		ContainerID:         r.ContainerID,
		TokenCount:          r.TokenCount,
		TokenUsage:          r.TokenUsage,
		CurrentUsage:        r.CurrentUsage,
		LastUpdateTimestamp: r.LastUpdateTimestamp,
		Email:               r.Email,
		FamilyName:          r.FamilyName,
		GivenName:           r.GivenName,
		Template:            r.Template,
	}
}
