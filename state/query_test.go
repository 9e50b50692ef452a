package state

import "testing"

func seedQueryUsers(t *testing.T) *AgentProjectState {
	t.Helper()
	a := newTestAgent(t)
	users := []UserInfo{
		{Email: "c@example.com", DisplayName: "Carol", CreatedAt: 300},
		{Email: "a@example.com", DisplayName: "alice", CreatedAt: 100},
		{Email: "b@example.com", DisplayName: "Bob", CreatedAt: 200, PhoneNumber: "+15555550100"},
	}
	for i, u := range users {
		if _, err := a.CreateUserWithLocalID(string(rune('x'+i)), u); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	return a
}

func localIDs(users []*UserInfo) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.LocalID)
	}
	return out
}

func TestQueryUsersSortAndCursor(t *testing.T) {
	a := seedQueryUsers(t)

	tests := []struct {
		name string
		opts QueryOptions
		want []string
	}{
		{name: "local id asc", opts: QueryOptions{}, want: []string{"x", "y", "z"}},
		{name: "created desc", opts: QueryOptions{SortBy: SortByCreatedAt, Order: Descending}, want: []string{"x", "z", "y"}},
		{name: "name asc case insensitive", opts: QueryOptions{SortBy: SortByDisplayName}, want: []string{"y", "z", "x"}},
		{name: "cursor after y", opts: QueryOptions{StartToken: "y"}, want: []string{"z"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := localIDs(a.QueryUsers(nil, tc.opts))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v want %v", got, tc.want)
				}
			}
		})
	}
}

func TestQueryUsersFilter(t *testing.T) {
	a := seedQueryUsers(t)
	got := a.QueryUsers([]QueryFilter{{PhoneNumber: "+15555550100"}}, QueryOptions{})
	if len(got) != 1 || got[0].Email != "b@example.com" {
		t.Fatalf("unexpected filter result: %v", localIDs(got))
	}
	if n := len(a.QueryUsers([]QueryFilter{{Email: "nobody@example.com"}}, QueryOptions{})); n != 0 {
		t.Fatalf("expected no matches, got %d", n)
	}
}

func TestQueryUsersFiltersAreOred(t *testing.T) {
	a := seedQueryUsers(t)
	got := a.QueryUsers([]QueryFilter{{Email: "a@example.com"}, {LocalID: "x"}}, QueryOptions{})
	if ids := localIDs(got); len(ids) != 2 || ids[0] != "x" || ids[1] != "y" {
		t.Fatalf("unexpected result: %v", ids)
	}
}
