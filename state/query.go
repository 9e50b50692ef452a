package state

import (
	"fmt"
	"sort"
	"strings"
)

// SortField selects the key QueryUsers orders by.
type SortField string

const (
	SortByLocalID     SortField = "localId"
	SortByEmail       SortField = "email"
	SortByDisplayName SortField = "displayName"
	SortByCreatedAt   SortField = "createdAt"
	SortByLastLoginAt SortField = "lastLoginAt"
)

// SortOrder is ASC or DESC.
type SortOrder string

const (
	Ascending  SortOrder = "ASC"
	Descending SortOrder = "DESC"
)

// QueryFilter selects users by exact match. Empty fields match everything.
type QueryFilter struct {
	LocalID     string
	Email       string
	PhoneNumber string
}

func (f QueryFilter) match(u *UserInfo) bool {
	if f.LocalID != "" && u.LocalID != f.LocalID {
		return false
	}
	if f.Email != "" && u.Email != f.Email {
		return false
	}
	if f.PhoneNumber != "" && u.PhoneNumber != f.PhoneNumber {
		return false
	}
	return true
}

// QueryOptions controls ordering and cursor pagination. StartToken is the
// sort key of the last user of the previous page; only users strictly after
// it are returned.
type QueryOptions struct {
	SortBy     SortField
	Order      SortOrder
	StartToken string
}

func matchAny(filters []QueryFilter, u *UserInfo) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.match(u) {
			return true
		}
	}
	return false
}

// QueryUsers returns copies of the users matching any of filters in the
// requested order. No filters selects every user.
func (s *Store) QueryUsers(filters []QueryFilter, opts QueryOptions) []*UserInfo {
	field := opts.SortBy
	if field == "" {
		field = SortByLocalID
	}
	desc := opts.Order == Descending

	type keyed struct {
		key  string
		user *UserInfo
	}
	matched := make([]keyed, 0, len(s.users))
	for _, u := range s.users {
		if matchAny(filters, u) {
			matched = append(matched, keyed{key: SortKey(u, field), user: u})
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.key != b.key {
			if desc {
				return a.key > b.key
			}
			return a.key < b.key
		}
		return a.user.LocalID < b.user.LocalID
	})

	out := make([]*UserInfo, 0, len(matched))
	for _, m := range matched {
		if opts.StartToken != "" {
			if desc && m.key >= opts.StartToken {
				continue
			}
			if !desc && m.key <= opts.StartToken {
				continue
			}
		}
		out = append(out, m.user.Clone())
	}
	return out
}

// SortKey returns the cursor key of u for field. Numeric fields are zero
// padded so that string order matches numeric order.
func SortKey(u *UserInfo, field SortField) string {
	switch field {
	case SortByEmail:
		return u.Email
	case SortByDisplayName:
		return strings.ToLower(u.DisplayName)
	case SortByCreatedAt:
		return fmt.Sprintf("%020d", u.CreatedAt)
	case SortByLastLoginAt:
		return fmt.Sprintf("%020d", u.LastLoginAt)
	default:
		return u.LocalID
	}
}

func sortByLocalID(users []*UserInfo) {
	sort.Slice(users, func(i, j int) bool { return users[i].LocalID < users[j].LocalID })
}
