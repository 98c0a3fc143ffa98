package rbac

type Role string
type Action string

const (
	RoleReader Role = "reader"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionPublish Action = "publish"
	// ActionOversee is editing an article owned by someone else.
	ActionOversee Action = "oversee"
	// ActionManage covers site page content and the admin article list.
	ActionManage Action = "manage"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleAuthor:
		return action == ActionRead || action == ActionWrite || action == ActionPublish
	case RoleReader:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleReader, RoleAuthor, RoleAdmin:
		return Role(role)
	default:
		return RoleReader
	}
}
