package domain

// Member roles stored with each (room, user) pair. The chat core only reads
// the user ids; roles matter to the messager.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)
