package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	// configPath carries the directory credentials and the group
	// allow-list. Re-read on every lookup; the module holds no state
	// between calls.
	configPath = "/etc/nssaad.conf"
	// tuningPath optionally adjusts runtime behavior (log level, request
	// timeout, endpoint overrides). Read once at load time, like the
	// host process environment it stands in for.
	tuningPath = "/etc/nss_aad_go.env"
)

type aadConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Tenant       string `yaml:"tenant"`
	// DomainSID prefixes numeric ids when building by-id filter queries.
	DomainSID string `yaml:"domain_sid"`
	// DefaultUserGroupID becomes pw_gid for every resolved user.
	DefaultUserGroupID uint32 `yaml:"default_user_group_id"`
	// GroupIDs is the allow-list: directory group name to gid. Groups
	// absent here do not exist as far as initgroups is concerned.
	GroupIDs map[string]uint32 `yaml:"group_ids"`
}

// configError marks a failure to obtain local configuration, which the
// status translator reports as UNAVAIL rather than a directory failure.
type configError struct {
	path string
	err  error
}

func (e *configError) Error() string {
	return fmt.Sprintf("cannot load %s: %v", e.path, e.err)
}

func (e *configError) Unwrap() error { return e.err }

func loadConfig(path string) (*aadConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &configError{path: path, err: err}
	}
	var cfg aadConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &configError{path: path, err: err}
	}
	return &cfg, nil
}

type tuning struct {
	debugLevel int
	// timeout bounds one whole lookup. Zero means no deadline; a hung
	// upstream then blocks the calling thread, which is the documented
	// default.
	timeout       time.Duration
	loginEndpoint string
	graphEndpoint string
}

func loadTuning(path string) tuning {
	var t tuning
	env, err := godotenv.Read(path)
	if err != nil {
		return t
	}
	if v, err := strconv.Atoi(env["NSS_AAD_DEBUG"]); err == nil {
		t.debugLevel = v
	}
	if v, err := time.ParseDuration(env["NSS_AAD_TIMEOUT"]); err == nil && v > 0 {
		t.timeout = v
	}
	t.loginEndpoint = env["NSS_AAD_LOGIN_ENDPOINT"]
	t.graphEndpoint = env["NSS_AAD_GRAPH_ENDPOINT"]
	return t
}

var tun = loadTuning(tuningPath)
