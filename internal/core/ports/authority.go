package ports

import "context"

type Role uint8

const (
	RoleUnknown Role = iota
	RoleAgent
	RoleAdmin
)

func (r Role) String() string {
	return []string{
		"unknown",
		"agent",
		"admin",
	}[r]
}

type AccountRole uint8

const (
	AccountRoleUnknown AccountRole = iota
	AccountRoleCustodian
	AccountRoleSeller
	AccountRoleProtocol
)

func (r AccountRole) String() string {
	return []string{
		"unknown",
		"custodian",
		"seller",
		"protocol",
	}[r]
}

// ProtocolEntity is the entity the admin roles are granted on.
const ProtocolEntity = "protocol"

type RoleAuthority interface {
	HasRole(
		ctx context.Context, entityId, caller string, role Role, accountRole AccountRole,
	) (bool, error)
}

// RoleGranter is implemented by authorities that accept grants at runtime.
type RoleGranter interface {
	GrantRole(
		ctx context.Context, entityId, caller string, role Role, accountRole AccountRole,
	) error
}
