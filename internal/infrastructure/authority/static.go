package authority

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/arkade-os/custodyd/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Grant gives caller the role on behalf of entityId.
type Grant struct {
	EntityId    string `mapstructure:"entity_id"`
	Caller      string `mapstructure:"caller"`
	Role        string `mapstructure:"role"`
	AccountRole string `mapstructure:"account_role"`
}

type grantKey struct {
	entityId    string
	caller      string
	role        ports.Role
	accountRole ports.AccountRole
}

type staticAuthority struct {
	lock   sync.RWMutex
	grants map[grantKey]struct{}
}

// NewStaticAuthority returns an in-memory authority seeded with the given grants.
// Roles granted at runtime are not persisted.
func NewStaticAuthority(grants ...Grant) (ports.RoleAuthority, error) {
	a := &staticAuthority{grants: make(map[grantKey]struct{})}
	for _, g := range grants {
		role, err := ParseRole(g.Role)
		if err != nil {
			return nil, err
		}
		accountRole, err := ParseAccountRole(g.AccountRole)
		if err != nil {
			return nil, err
		}
		if err := a.GrantRole(
			context.Background(), g.EntityId, g.Caller, role, accountRole,
		); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// NewFromFile loads the grants listed under the `grants` key of a json, yaml or
// toml file.
func NewFromFile(path string) (ports.RoleAuthority, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read roles file %s: %w", path, err)
	}

	var grants []Grant
	if err := v.UnmarshalKey("grants", &grants); err != nil {
		return nil, fmt.Errorf("failed to parse roles file %s: %w", path, err)
	}

	a, err := NewStaticAuthority(grants...)
	if err != nil {
		return nil, fmt.Errorf("invalid roles file %s: %w", path, err)
	}
	log.Debugf("loaded %d role grants from %s", len(grants), path)
	return a, nil
}

func (a *staticAuthority) HasRole(
	_ context.Context, entityId, caller string, role ports.Role, accountRole ports.AccountRole,
) (bool, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	_, ok := a.grants[grantKey{entityId, caller, role, accountRole}]
	return ok, nil
}

func (a *staticAuthority) GrantRole(
	_ context.Context, entityId, caller string, role ports.Role, accountRole ports.AccountRole,
) error {
	if entityId == "" || caller == "" {
		return fmt.Errorf("missing entity id or caller")
	}
	if role == ports.RoleUnknown || accountRole == ports.AccountRoleUnknown {
		return fmt.Errorf("unknown role %s %s", accountRole, role)
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.grants[grantKey{entityId, caller, role, accountRole}] = struct{}{}
	return nil
}

func ParseRole(s string) (ports.Role, error) {
	switch strings.ToLower(s) {
	case ports.RoleAgent.String():
		return ports.RoleAgent, nil
	case ports.RoleAdmin.String():
		return ports.RoleAdmin, nil
	default:
		return ports.RoleUnknown, fmt.Errorf("unknown role %q", s)
	}
}

func ParseAccountRole(s string) (ports.AccountRole, error) {
	switch strings.ToLower(s) {
	case ports.AccountRoleCustodian.String():
		return ports.AccountRoleCustodian, nil
	case ports.AccountRoleSeller.String():
		return ports.AccountRoleSeller, nil
	case ports.AccountRoleProtocol.String():
		return ports.AccountRoleProtocol, nil
	default:
		return ports.AccountRoleUnknown, fmt.Errorf("unknown account role %q", s)
	}
}
