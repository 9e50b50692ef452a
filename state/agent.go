package state

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/MrEthical07/authemu/internal/ident"
)

const tenantSuffixLength = 5

var tenantIDUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

// AgentOptions seeds the project-wide configuration of a new agent project.
type AgentOptions struct {
	OneAccountPerEmail bool
	UsageMode          UsageMode
}

// AgentProjectState is the top-level namespace of a project. It owns the
// project-wide configuration and the tenants nested under the project.
type AgentProjectState struct {
	*Store

	mu                 sync.Mutex
	oneAccountPerEmail bool
	usageMode          UsageMode
	tenants            map[string]*TenantProjectState
}

// NewAgentProjectState returns an empty agent project.
func NewAgentProjectState(projectID string, ids IDGenerator, opts AgentOptions) *AgentProjectState {
	if opts.UsageMode == "" {
		opts.UsageMode = UsageModeDefault
	}
	a := &AgentProjectState{
		oneAccountPerEmail: opts.OneAccountPerEmail,
		usageMode:          opts.UsageMode,
		tenants:            make(map[string]*TenantProjectState),
	}
	a.Store = newStore(projectID, "", ids, a)
	return a
}

// Lock serializes access to the project and all of its tenants.
func (a *AgentProjectState) Lock() { a.mu.Lock() }

// Unlock releases the project lock.
func (a *AgentProjectState) Unlock() { a.mu.Unlock() }

func (a *AgentProjectState) OneAccountPerEmail() bool { return a.oneAccountPerEmail }

// SetOneAccountPerEmail toggles email uniqueness for the project and its
// tenants. Turning it on fails with ErrDuplicateEmails while any namespace
// still holds two accounts sharing an email.
func (a *AgentProjectState) SetOneAccountPerEmail(v bool) error {
	if v && !a.oneAccountPerEmail {
		if a.hasDuplicateEmail() {
			return ErrDuplicateEmails
		}
		for _, t := range a.tenants {
			if t.hasDuplicateEmail() {
				return ErrDuplicateEmails
			}
		}
	}
	a.oneAccountPerEmail = v
	return nil
}

func (a *AgentProjectState) UsageMode() UsageMode { return a.usageMode }

// SetUsageMode changes the usage mode. Switching to PASSTHROUGH requires the
// project and all its tenants to be empty.
func (a *AgentProjectState) SetUsageMode(mode UsageMode) error {
	if mode == UsageModePassthrough && mode != a.usageMode && a.TotalUserCount() > 0 {
		return ErrUsersPresent
	}
	a.usageMode = mode
	return nil
}

// TotalUserCount counts users of the agent and every tenant.
func (a *AgentProjectState) TotalUserCount() int {
	n := a.UserCount()
	for _, t := range a.tenants {
		n += t.UserCount()
	}
	return n
}

func (a *AgentProjectState) AllowPasswordSignup() bool   { return true }
func (a *AgentProjectState) EnableEmailLinkSignin() bool { return true }
func (a *AgentProjectState) EnableAnonymousUser() bool   { return true }
func (a *AgentProjectState) DisableAuth() bool           { return false }

func (a *AgentProjectState) MfaConfig() MfaConfig {
	return MfaConfig{State: MfaStateEnabled, EnabledProviders: []string{MfaProviderPhone}}
}

func (a *AgentProjectState) testPhoneCode(string) (string, bool) { return "", false }

// CreateTenant registers a tenant built from t. The tenant id is derived
// from the display name plus a random suffix; Name is filled in.
func (a *AgentProjectState) CreateTenant(t Tenant) (*TenantProjectState, error) {
	base := tenantIDUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(t.DisplayName)), "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "tenant"
	}
	id, err := ident.Unique(
		func() string { return base + "-" + strings.ToLower(a.ids.ID(tenantSuffixLength)) },
		func(id string) bool { _, ok := a.tenants[id]; return ok },
	)
	if err != nil {
		return nil, err
	}

	t.TenantID = id
	t.Name = "projects/" + a.projectID + "/tenants/" + id
	ts := &TenantProjectState{agent: a, tenant: t.clone()}
	ts.Store = newStore(a.projectID, id, a.ids, ts)
	a.tenants[id] = ts
	return ts, nil
}

// GetTenant returns the tenant with the given id.
func (a *AgentProjectState) GetTenant(tenantID string) (*TenantProjectState, error) {
	t, ok := a.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// ListTenants returns tenants with ids after startToken in id order. A
// negative limit returns every remaining tenant.
func (a *AgentProjectState) ListTenants(startToken string, limit int) []Tenant {
	ids := make([]string, 0, len(a.tenants))
	for id := range a.tenants {
		if startToken == "" || id > startToken {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Tenant, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.tenants[id].Tenant())
	}
	return out
}

// Tenants returns every tenant of the project in id order.
func (a *AgentProjectState) Tenants() []*TenantProjectState {
	out := make([]*TenantProjectState, 0, len(a.tenants))
	for _, t := range a.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tenantID < out[j].tenantID })
	return out
}

func (a *AgentProjectState) removeTenant(tenantID string) {
	delete(a.tenants, tenantID)
}
