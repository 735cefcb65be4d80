package identity

// Envelope is the document carried base64 encoded in the x-rh-identity header.
type Envelope struct {
	Identity Identity `json:"identity"`
}

type Identity struct {
	Type          string   `json:"type"`
	AuthType      string   `json:"auth_type"`
	AccountNumber string   `json:"account_number"`
	OrgID         string   `json:"org_id,omitempty"`
	User          User     `json:"user"`
	Internal      Internal `json:"internal"`
}

type User struct {
	Username   string `json:"username,omitempty"`
	Email      string `json:"email,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	IsActive   bool   `json:"is_active"`
	IsOrgAdmin bool   `json:"is_org_admin"`
	IsInternal bool   `json:"is_internal"`
	Locale     string `json:"locale,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

type Internal struct {
	OrgID     string `json:"org_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	AuthTime  *int64 `json:"auth_time,omitempty"`
}

// UserOverride replaces individual user fields. Nil fields keep the derived value.
type UserOverride struct {
	Username   *string `mapstructure:"username"     yaml:"username,omitempty"`
	Email      *string `mapstructure:"email"        yaml:"email,omitempty"`
	FirstName  *string `mapstructure:"first_name"   yaml:"first_name,omitempty"`
	LastName   *string `mapstructure:"last_name"    yaml:"last_name,omitempty"`
	IsActive   *bool   `mapstructure:"is_active"    yaml:"is_active,omitempty"`
	IsOrgAdmin *bool   `mapstructure:"is_org_admin" yaml:"is_org_admin,omitempty"`
	IsInternal *bool   `mapstructure:"is_internal"  yaml:"is_internal,omitempty"`
	Locale     *string `mapstructure:"locale"       yaml:"locale,omitempty"`
	UserID     *string `mapstructure:"user_id"      yaml:"user_id,omitempty"`
}

type InternalOverride struct {
	OrgID     *string `mapstructure:"org_id"     yaml:"org_id,omitempty"`
	AccountID *string `mapstructure:"account_id" yaml:"account_id,omitempty"`
	AuthTime  *int64  `mapstructure:"auth_time"  yaml:"auth_time,omitempty"`
}

// IdentityOverride replaces top level identity fields.
type IdentityOverride struct {
	Type          *string `mapstructure:"type"           yaml:"type,omitempty"`
	AuthType      *string `mapstructure:"auth_type"      yaml:"auth_type,omitempty"`
	AccountNumber *string `mapstructure:"account_number" yaml:"account_number,omitempty"`
	OrgID         *string `mapstructure:"org_id"         yaml:"org_id,omitempty"`
}

// Options groups the overrides applied on top of the claims derived envelope.
type Options struct {
	User     *UserOverride     `mapstructure:"user"     yaml:"user,omitempty"`
	Internal *InternalOverride `mapstructure:"internal" yaml:"internal,omitempty"`
	Identity *IdentityOverride `mapstructure:"identity" yaml:"identity,omitempty"`
}

// Build derives an envelope from token claims and applies each set of overrides in order,
// field by field, so later options win.
func Build(claims Claims, overrides ...Options) Envelope {
	username := claims.PreferredUsername
	id := Identity{
		Type:          "User",
		AuthType:      "basic-auth",
		AccountNumber: "",
		OrgID:         username,
		User: User{
			Username:   username,
			Email:      claims.Email,
			FirstName:  claims.Name,
			IsActive:   true,
			IsOrgAdmin: true,
			IsInternal: false,
			Locale:     claims.Locale,
			UserID:     username,
		},
		Internal: Internal{
			OrgID: username,
		},
	}

	for _, opts := range overrides {
		id.apply(opts)
	}
	return Envelope{Identity: id}
}

func (id *Identity) apply(opts Options) {
	if u := opts.User; u != nil {
		set(&id.User.Username, u.Username)
		set(&id.User.Email, u.Email)
		set(&id.User.FirstName, u.FirstName)
		set(&id.User.LastName, u.LastName)
		set(&id.User.IsActive, u.IsActive)
		set(&id.User.IsOrgAdmin, u.IsOrgAdmin)
		set(&id.User.IsInternal, u.IsInternal)
		set(&id.User.Locale, u.Locale)
		set(&id.User.UserID, u.UserID)
	}
	if in := opts.Internal; in != nil {
		set(&id.Internal.OrgID, in.OrgID)
		set(&id.Internal.AccountID, in.AccountID)
		if in.AuthTime != nil {
			t := *in.AuthTime
			id.Internal.AuthTime = &t
		}
	}
	if top := opts.Identity; top != nil {
		set(&id.Type, top.Type)
		set(&id.AuthType, top.AuthType)
		set(&id.AccountNumber, top.AccountNumber)
		set(&id.OrgID, top.OrgID)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
