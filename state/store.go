package state

import (
	"fmt"

	"github.com/MrEthical07/authemu/internal/ident"
)

const localIDLength = 28

// IDGenerator produces the random values a namespace hands out.
type IDGenerator interface {
	// ID returns an alphanumeric id of the given length.
	ID(length int) string
	// Digits returns a numeric code of the given length.
	Digits(length int) string
	// Token returns an opaque URL-safe token.
	Token() string
}

type policy interface {
	OneAccountPerEmail() bool
	testPhoneCode(phoneNumber string) (string, bool)
}

// Store holds the users and ephemeral codes of a single namespace. It is
// embedded by AgentProjectState and TenantProjectState.
type Store struct {
	projectID string
	tenantID  string
	ids       IDGenerator
	policy    policy

	users                   map[string]*UserInfo
	localIDsByEmail         map[string][]string
	localIDByPhone          map[string]string
	localIDByInitialEmail   map[string]string
	localIDByProvider       map[string]map[string]string
	localIDsByProviderEmail map[string]map[string]struct{}

	oobs              map[string]OobRecord
	oobOrder          []string
	verifications     map[string]PhoneVerificationRecord
	verificationOrder []string
	proofs            map[string]TemporaryProof
	refreshTokens     map[string]RefreshTokenRecord
	refreshByLocalID  map[string]map[string]struct{}
}

func newStore(projectID, tenantID string, ids IDGenerator, p policy) *Store {
	if ids == nil {
		ids = ident.Random{}
	}
	s := &Store{
		projectID: projectID,
		tenantID:  tenantID,
		ids:       ids,
		policy:    p,
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.users = make(map[string]*UserInfo)
	s.localIDsByEmail = make(map[string][]string)
	s.localIDByPhone = make(map[string]string)
	s.localIDByInitialEmail = make(map[string]string)
	s.localIDByProvider = make(map[string]map[string]string)
	s.localIDsByProviderEmail = make(map[string]map[string]struct{})
	s.oobs = make(map[string]OobRecord)
	s.oobOrder = nil
	s.verifications = make(map[string]PhoneVerificationRecord)
	s.verificationOrder = nil
	s.proofs = make(map[string]TemporaryProof)
	s.refreshTokens = make(map[string]RefreshTokenRecord)
	s.refreshByLocalID = make(map[string]map[string]struct{})
}

// ProjectID returns the owning project id.
func (s *Store) ProjectID() string { return s.projectID }

// TenantID returns the tenant id, or "" for the agent project.
func (s *Store) TenantID() string { return s.tenantID }

// IDs returns the generator used by this namespace.
func (s *Store) IDs() IDGenerator { return s.ids }

// GenerateLocalID returns a local id not used by any user.
func (s *Store) GenerateLocalID() (string, error) {
	return ident.Unique(
		func() string { return s.ids.ID(localIDLength) },
		func(id string) bool { _, ok := s.users[id]; return ok },
	)
}

// CreateUser stores u under a freshly generated local id.
func (s *Store) CreateUser(u UserInfo) (*UserInfo, error) {
	id, err := s.GenerateLocalID()
	if err != nil {
		return nil, err
	}
	return s.CreateUserWithLocalID(id, u)
}

// CreateUserWithLocalID stores u under localID. It fails with
// ErrLocalIDExists rather than replacing an existing user.
func (s *Store) CreateUserWithLocalID(localID string, u UserInfo) (*UserInfo, error) {
	if _, ok := s.users[localID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLocalIDExists, localID)
	}
	next := u.Clone()
	next.LocalID = localID
	next.TenantID = s.tenantID
	syncBuiltinProviders(next)
	if err := s.commit(nil, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// OverwriteUserWithLocalID replaces the user stored under localID, or creates
// it. It is meant for imports that explicitly allow overwriting.
func (s *Store) OverwriteUserWithLocalID(localID string, u UserInfo) (*UserInfo, error) {
	prev := s.users[localID]
	next := u.Clone()
	next.LocalID = localID
	next.TenantID = s.tenantID
	syncBuiltinProviders(next)
	if prev != nil && next.ValidSince < prev.ValidSince {
		next.ValidSince = prev.ValidSince
	}
	if err := s.commit(prev, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// UpdateUser applies mutate to a copy of the user and commits the copy if
// every namespace invariant still holds. On error the stored user is left
// untouched.
func (s *Store) UpdateUser(localID string, opts UpdateOptions, mutate func(u *UserInfo)) (*UserInfo, error) {
	prev, ok := s.users[localID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, localID)
	}
	next := prev.Clone()
	if mutate != nil {
		mutate(next)
	}
	next.LocalID = localID
	next.TenantID = s.tenantID
	applyProviderOptions(next, opts)
	syncBuiltinProviders(next)
	if err := s.commit(prev, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// DeleteUser removes the user and every refresh token issued to it.
func (s *Store) DeleteUser(localID string) error {
	u, ok := s.users[localID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, localID)
	}
	s.unindex(u)
	delete(s.users, localID)
	for token := range s.refreshByLocalID[localID] {
		delete(s.refreshTokens, token)
	}
	delete(s.refreshByLocalID, localID)
	return nil
}

// DeleteAllAccounts drops every user together with the codes, proofs and
// refresh tokens of the namespace.
func (s *Store) DeleteAllAccounts() {
	s.reset()
}

// UserCount returns the number of users in the namespace.
func (s *Store) UserCount() int { return len(s.users) }

// GetUserByLocalID returns a copy of the user, or nil.
func (s *Store) GetUserByLocalID(localID string) *UserInfo {
	return s.users[localID].Clone()
}

// GetUserByEmail returns the earliest stored user with the email, or nil.
func (s *Store) GetUserByEmail(email string) *UserInfo {
	ids := s.localIDsByEmail[email]
	if len(ids) == 0 {
		return nil
	}
	return s.users[ids[0]].Clone()
}

// GetUserByPhoneNumber returns the user owning the phone number, or nil.
func (s *Store) GetUserByPhoneNumber(phoneNumber string) *UserInfo {
	id, ok := s.localIDByPhone[phoneNumber]
	if !ok {
		return nil
	}
	return s.users[id].Clone()
}

// GetUserByInitialEmail returns the user whose pre-change email matches.
func (s *Store) GetUserByInitialEmail(email string) *UserInfo {
	id, ok := s.localIDByInitialEmail[email]
	if !ok {
		return nil
	}
	return s.users[id].Clone()
}

// GetUserByProviderRawID returns the user linked to (providerID, rawID).
func (s *Store) GetUserByProviderRawID(providerID, rawID string) *UserInfo {
	id, ok := s.localIDByProvider[providerID][rawID]
	if !ok {
		return nil
	}
	return s.users[id].Clone()
}

// GetUsersByEmailOrProviderEmail returns every user whose email, or the email
// of one of whose providers, matches. Results are ordered by local id.
func (s *Store) GetUsersByEmailOrProviderEmail(email string) []*UserInfo {
	seen := make(map[string]struct{})
	for _, id := range s.localIDsByEmail[email] {
		seen[id] = struct{}{}
	}
	for id := range s.localIDsByProviderEmail[email] {
		seen[id] = struct{}{}
	}
	out := make([]*UserInfo, 0, len(seen))
	for id := range seen {
		out = append(out, s.users[id].Clone())
	}
	sortByLocalID(out)
	return out
}

func (s *Store) hasDuplicateEmail() bool {
	for _, ids := range s.localIDsByEmail {
		if len(ids) > 1 {
			return true
		}
	}
	return false
}

func (s *Store) commit(prev, next *UserInfo) error {
	if err := s.check(prev, next); err != nil {
		return err
	}
	if prev != nil {
		s.unindex(prev)
	}
	s.users[next.LocalID] = next
	s.index(next)
	return nil
}

func (s *Store) check(prev, next *UserInfo) error {
	id := next.LocalID
	emailChanged := prev == nil || prev.Email != next.Email
	if next.Email != "" && emailChanged && s.policy.OneAccountPerEmail() {
		for _, other := range s.localIDsByEmail[next.Email] {
			if other != id {
				return fmt.Errorf("%w: %s", ErrEmailExists, next.Email)
			}
		}
	}
	if next.PhoneNumber != "" {
		if other, ok := s.localIDByPhone[next.PhoneNumber]; ok && other != id {
			return fmt.Errorf("%w: %s", ErrPhoneExists, next.PhoneNumber)
		}
	}
	for _, p := range next.ProviderUserInfo {
		if !IsFederated(p.ProviderID) {
			continue
		}
		if other, ok := s.localIDByProvider[p.ProviderID][p.RawID]; ok && other != id {
			return fmt.Errorf("%w: %s/%s", ErrProviderLinked, p.ProviderID, p.RawID)
		}
	}
	enrollments := make(map[string]struct{}, len(next.MfaInfo))
	for _, e := range next.MfaInfo {
		if _, dup := enrollments[e.MfaEnrollmentID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEnrollmentID, e.MfaEnrollmentID)
		}
		enrollments[e.MfaEnrollmentID] = struct{}{}
	}
	if prev != nil && next.ValidSince < prev.ValidSince {
		return ErrValidSinceRegressed
	}
	return nil
}

func (s *Store) index(u *UserInfo) {
	if u.Email != "" {
		s.localIDsByEmail[u.Email] = append(s.localIDsByEmail[u.Email], u.LocalID)
	}
	if u.PhoneNumber != "" {
		s.localIDByPhone[u.PhoneNumber] = u.LocalID
	}
	if u.InitialEmail != "" {
		s.localIDByInitialEmail[u.InitialEmail] = u.LocalID
	}
	for _, p := range u.ProviderUserInfo {
		if IsFederated(p.ProviderID) {
			byRaw := s.localIDByProvider[p.ProviderID]
			if byRaw == nil {
				byRaw = make(map[string]string)
				s.localIDByProvider[p.ProviderID] = byRaw
			}
			byRaw[p.RawID] = u.LocalID
		}
		if p.Email != "" {
			set := s.localIDsByProviderEmail[p.Email]
			if set == nil {
				set = make(map[string]struct{})
				s.localIDsByProviderEmail[p.Email] = set
			}
			set[u.LocalID] = struct{}{}
		}
	}
}

func (s *Store) unindex(u *UserInfo) {
	if u.Email != "" {
		ids := s.localIDsByEmail[u.Email]
		kept := ids[:0]
		for _, id := range ids {
			if id != u.LocalID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(s.localIDsByEmail, u.Email)
		} else {
			s.localIDsByEmail[u.Email] = kept
		}
	}
	if u.PhoneNumber != "" && s.localIDByPhone[u.PhoneNumber] == u.LocalID {
		delete(s.localIDByPhone, u.PhoneNumber)
	}
	if u.InitialEmail != "" && s.localIDByInitialEmail[u.InitialEmail] == u.LocalID {
		delete(s.localIDByInitialEmail, u.InitialEmail)
	}
	for _, p := range u.ProviderUserInfo {
		if byRaw := s.localIDByProvider[p.ProviderID]; byRaw != nil && byRaw[p.RawID] == u.LocalID {
			delete(byRaw, p.RawID)
			if len(byRaw) == 0 {
				delete(s.localIDByProvider, p.ProviderID)
			}
		}
		if set := s.localIDsByProviderEmail[p.Email]; set != nil {
			delete(set, u.LocalID)
			if len(set) == 0 {
				delete(s.localIDsByProviderEmail, p.Email)
			}
		}
	}
}
