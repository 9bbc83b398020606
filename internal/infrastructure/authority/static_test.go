package authority_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/internal/infrastructure/authority"
	"github.com/stretchr/testify/require"
)

const rolesFile = `{
  "grants": [
    {"entity_id": "custodian1", "caller": "alice", "role": "agent", "account_role": "custodian"},
    {"entity_id": "protocol", "caller": "root", "role": "admin", "account_role": "protocol"}
  ]
}`

func TestStaticAuthority(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "roles.json")
		require.NoError(t, os.WriteFile(path, []byte(rolesFile), 0600))

		a, err := authority.NewFromFile(path)
		require.NoError(t, err)

		ok, err := a.HasRole(
			t.Context(), "custodian1", "alice", ports.RoleAgent, ports.AccountRoleCustodian,
		)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = a.HasRole(
			t.Context(), "custodian1", "alice", ports.RoleAgent, ports.AccountRoleSeller,
		)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = a.HasRole(
			t.Context(), ports.ProtocolEntity, "root", ports.RoleAdmin, ports.AccountRoleProtocol,
		)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("grant at runtime", func(t *testing.T) {
		a, err := authority.NewStaticAuthority()
		require.NoError(t, err)
		granter, ok := a.(ports.RoleGranter)
		require.True(t, ok)

		err = granter.GrantRole(
			t.Context(), "seller1", "bob", ports.RoleAgent, ports.AccountRoleSeller,
		)
		require.NoError(t, err)

		has, err := a.HasRole(t.Context(), "seller1", "bob", ports.RoleAgent, ports.AccountRoleSeller)
		require.NoError(t, err)
		require.True(t, has)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name  string
			grant authority.Grant
		}{
			{"unknown role", authority.Grant{
				EntityId: "e", Caller: "c", Role: "owner", AccountRole: "seller",
			}},
			{"unknown account role", authority.Grant{
				EntityId: "e", Caller: "c", Role: "agent", AccountRole: "buyer",
			}},
			{"missing caller", authority.Grant{
				EntityId: "e", Role: "agent", AccountRole: "seller",
			}},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				_, err := authority.NewStaticAuthority(f.grant)
				require.Error(t, err)
			})
		}

		_, err := authority.NewFromFile(filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
	})
}
