package state

// UsageMode selects between local emulation and pass-through behavior.
type UsageMode string

const (
	UsageModeDefault     UsageMode = "DEFAULT"
	UsageModePassthrough UsageMode = "PASSTHROUGH"
)

// MfaConfig is the second-factor policy of a namespace.
type MfaConfig struct {
	State            string   `json:"state,omitempty"`
	EnabledProviders []string `json:"enabledProviders,omitempty"`
}

const (
	MfaStateEnabled  = "ENABLED"
	MfaStateDisabled = "DISABLED"
	MfaProviderPhone = "PHONE_SMS"
)

// PhoneEnabled reports whether SMS second factors are allowed.
func (c MfaConfig) PhoneEnabled() bool {
	return c.State == MfaStateEnabled && contains(c.EnabledProviders, MfaProviderPhone)
}

// ProjectState is the namespace an operation runs against: either the agent
// project or one of its tenants.
type ProjectState interface {
	ProjectID() string
	TenantID() string
	IDs() IDGenerator

	OneAccountPerEmail() bool
	UsageMode() UsageMode
	AllowPasswordSignup() bool
	EnableEmailLinkSignin() bool
	EnableAnonymousUser() bool
	DisableAuth() bool
	MfaConfig() MfaConfig

	GenerateLocalID() (string, error)
	CreateUser(u UserInfo) (*UserInfo, error)
	CreateUserWithLocalID(localID string, u UserInfo) (*UserInfo, error)
	OverwriteUserWithLocalID(localID string, u UserInfo) (*UserInfo, error)
	UpdateUser(localID string, opts UpdateOptions, mutate func(u *UserInfo)) (*UserInfo, error)
	DeleteUser(localID string) error
	DeleteAllAccounts()
	UserCount() int

	GetUserByLocalID(localID string) *UserInfo
	GetUserByEmail(email string) *UserInfo
	GetUserByPhoneNumber(phoneNumber string) *UserInfo
	GetUserByInitialEmail(email string) *UserInfo
	GetUserByProviderRawID(providerID, rawID string) *UserInfo
	GetUsersByEmailOrProviderEmail(email string) []*UserInfo
	QueryUsers(filters []QueryFilter, opts QueryOptions) []*UserInfo

	CreateOobCode(email string, requestType OobRequestType, link func(code string) string) (OobRecord, error)
	ValidateOobCode(code string) (OobRecord, bool)
	DeleteOobCode(code string)
	ListOobCodes() []OobRecord

	CreateVerificationCode(phoneNumber string) (PhoneVerificationRecord, error)
	GetVerificationCode(sessionInfo string) (PhoneVerificationRecord, bool)
	DeleteVerificationCode(sessionInfo string)
	ListVerificationCodes() []PhoneVerificationRecord

	CreateTemporaryProof(phoneNumber string) (TemporaryProof, error)
	ValidateTemporaryProof(proof, phoneNumber string) bool
	DeleteTemporaryProof(proof string)

	CreateRefreshToken(rec RefreshTokenRecord) (string, error)
	GetRefreshToken(token string) (RefreshTokenRecord, *UserInfo, bool)
}

var (
	_ ProjectState = (*AgentProjectState)(nil)
	_ ProjectState = (*TenantProjectState)(nil)
)
