package server

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"rkv/internal/repl"
)

// Config carries the external-collaborator-supplied settings spec.md §6
// names: dir/dbfilename locate the RDB snapshot to load at startup, port is
// the TCP listen port, and replicaof, if set, puts the server in replica
// mode against the named master.
type Config struct {
	Host       string
	Port       int
	Dir        string
	DBFilename string

	// ReplicaOf is "host port", or empty for master mode.
	ReplicaOf string
}

// DefaultConfig returns the process's out-of-the-box settings.
func DefaultConfig() *Config {
	return &Config{
		Host:       "0.0.0.0",
		Port:       6379,
		Dir:        ".",
		DBFilename: "dump.rdb",
	}
}

// Role reports this config's replication stance.
func (c *Config) Role() repl.Role {
	if c.ReplicaOf != "" {
		return repl.RoleReplica
	}
	return repl.RoleMaster
}

// MasterAddr parses ReplicaOf into a dialable "host:port", valid only when
// Role() is RoleReplica.
func (c *Config) MasterAddr() (string, error) {
	host, portStr, ok := strings.Cut(c.ReplicaOf, " ")
	if !ok {
		return "", errors.Errorf("replicaof must be \"host port\", got %q", c.ReplicaOf)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return "", errors.Errorf("replicaof must be \"host port\", got %q", c.ReplicaOf)
	}
	return host + ":" + portStr, nil
}

// Validate reports every problem with the config at once, aggregated via
// go-multierror, rather than failing on the first field checked.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.Port <= 0 || c.Port > 65535 {
		errs = multierror.Append(errs, errors.New("port must be between 1 and 65535"))
	}
	if c.Dir == "" {
		errs = multierror.Append(errs, errors.New("dir must not be empty"))
	}
	if c.DBFilename == "" {
		errs = multierror.Append(errs, errors.New("dbfilename must not be empty"))
	}
	if c.ReplicaOf != "" {
		if _, err := c.MasterAddr(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
