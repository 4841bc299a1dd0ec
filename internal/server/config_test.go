package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rkv/internal/repl"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigRoleFollowsReplicaOf(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, repl.RoleMaster, cfg.Role())

	cfg.ReplicaOf = "localhost 6380"
	require.Equal(t, repl.RoleReplica, cfg.Role())
}

func TestMasterAddrParsesHostPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicaOf = "localhost 6380"
	addr, err := cfg.MasterAddr()
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", addr)
}

func TestMasterAddrRejectsMalformed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicaOf = "localhost"
	_, err := cfg.MasterAddr()
	require.Error(t, err)
}

func TestValidateAggregatesMultipleErrors(t *testing.T) {
	cfg := &Config{Port: -1, Dir: "", DBFilename: ""}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "port")
	require.Contains(t, err.Error(), "dir")
	require.Contains(t, err.Error(), "dbfilename")
}
