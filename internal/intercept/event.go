package intercept

// Role tells which side of a creation an event describes.
type Role int

const (
	// RoleParent names the process that performed the creation.
	RoleParent Role = iota
	// RoleChild names the newly created process.
	RoleChild
)

func (r Role) String() string {
	if r == RoleChild {
		return "child"
	}
	return "parent"
}

// ProcessEvent is one observed side of a process creation.
type ProcessEvent struct {
	PID  int
	Role Role
}
