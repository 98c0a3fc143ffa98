package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionOversee, true},
		{RoleAdmin, ActionManage, true},
		{RoleAuthor, ActionWrite, true},
		{RoleAuthor, ActionPublish, true},
		{RoleAuthor, ActionOversee, false},
		{RoleAuthor, ActionManage, false},
		{RoleReader, ActionRead, true},
		{RoleReader, ActionWrite, false},
		{Role("ghost"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Error("admin should normalize to RoleAdmin")
	}
	if Normalize("author") != RoleAuthor {
		t.Error("author should normalize to RoleAuthor")
	}
	if Normalize("unknown") != RoleReader {
		t.Error("unknown roles should normalize to RoleReader")
	}
	if Normalize("") != RoleReader {
		t.Error("empty role should normalize to RoleReader")
	}
}
