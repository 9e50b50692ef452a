package state

// Tenant is the stored configuration of a tenant.
type Tenant struct {
	Name                  string            `json:"name"`
	TenantID              string            `json:"tenantId"`
	DisplayName           string            `json:"displayName,omitempty"`
	AllowPasswordSignup   bool              `json:"allowPasswordSignup"`
	EnableEmailLinkSignin bool              `json:"enableEmailLinkSignin"`
	EnableAnonymousUser   bool              `json:"enableAnonymousUser"`
	DisableAuth           bool              `json:"disableAuth"`
	MfaConfig             MfaConfig         `json:"mfaConfig"`
	TestPhoneNumbers      map[string]string `json:"testPhoneNumbers,omitempty"`
}

func (t Tenant) clone() Tenant {
	c := t
	if t.TestPhoneNumbers != nil {
		c.TestPhoneNumbers = make(map[string]string, len(t.TestPhoneNumbers))
		for k, v := range t.TestPhoneNumbers {
			c.TestPhoneNumbers[k] = v
		}
	}
	if t.MfaConfig.EnabledProviders != nil {
		c.MfaConfig.EnabledProviders = append([]string(nil), t.MfaConfig.EnabledProviders...)
	}
	return c
}

// TenantProjectState is a tenant namespace. Sign-in toggles come from the
// tenant configuration; project-wide policy is read from the agent.
type TenantProjectState struct {
	*Store

	agent  *AgentProjectState
	tenant Tenant
}

// Agent returns the owning agent project.
func (t *TenantProjectState) Agent() *AgentProjectState { return t.agent }

// Tenant returns a copy of the tenant configuration.
func (t *TenantProjectState) Tenant() Tenant { return t.tenant.clone() }

// UpdateTenant applies mutate to a copy of the configuration and stores it.
// Name and TenantID cannot be changed.
func (t *TenantProjectState) UpdateTenant(mutate func(cfg *Tenant)) Tenant {
	next := t.tenant.clone()
	mutate(&next)
	next.Name = t.tenant.Name
	next.TenantID = t.tenant.TenantID
	t.tenant = next
	return t.tenant.clone()
}

// Delete removes the tenant, and all of its users, from the agent.
func (t *TenantProjectState) Delete() {
	t.agent.removeTenant(t.tenantID)
	t.DeleteAllAccounts()
}

func (t *TenantProjectState) OneAccountPerEmail() bool    { return t.agent.OneAccountPerEmail() }
func (t *TenantProjectState) UsageMode() UsageMode        { return t.agent.UsageMode() }
func (t *TenantProjectState) AllowPasswordSignup() bool   { return t.tenant.AllowPasswordSignup }
func (t *TenantProjectState) EnableEmailLinkSignin() bool { return t.tenant.EnableEmailLinkSignin }
func (t *TenantProjectState) EnableAnonymousUser() bool   { return t.tenant.EnableAnonymousUser }
func (t *TenantProjectState) DisableAuth() bool           { return t.tenant.DisableAuth }
func (t *TenantProjectState) MfaConfig() MfaConfig        { return t.tenant.clone().MfaConfig }

func (t *TenantProjectState) testPhoneCode(phoneNumber string) (string, bool) {
	code, ok := t.tenant.TestPhoneNumbers[phoneNumber]
	return code, ok
}
