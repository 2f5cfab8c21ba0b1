package security

import (
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
)

// Environment variables read during node bootstrap.
const (
	EnvEnable   = "ROS_SECURITY_ENABLE"
	EnvStrategy = "ROS_SECURITY_STRATEGY"
)

// Strategy decides what happens when security is enabled but no directory
// is found.
type Strategy int

const (
	// StrategyPermissive continues without security
	StrategyPermissive Strategy = iota
	// StrategyEnforce fails node creation
	StrategyEnforce
)

func (s Strategy) String() string {
	if s == StrategyEnforce {
		return "Enforce"
	}
	return "Permissive"
}

// Options are the security settings of one node.
type Options struct {
	// Enabled reports whether ROS_SECURITY_ENABLE is "true"
	Enabled bool
	// Strategy is StrategyEnforce iff ROS_SECURITY_STRATEGY is "Enforce"
	Strategy Strategy
	// SecureRoot is the resolved directory, empty when running unsecured
	SecureRoot string
}

// NodeOptions computes the security options of a node at bootstrap.
//
// With security disabled no lookup happens. When it is enabled and no
// directory is found, StrategyEnforce returns an error matching
// rcl.ErrNotFound while the permissive strategy logs a warning and returns
// options without a root.
func NodeOptions(env Environment, name, namespace string) (Options, error) {
	r := NewResolver(env)

	opts := Options{
		Enabled:  r.lookup(EnvEnable) == "true",
		Strategy: StrategyPermissive,
	}
	if r.lookup(EnvStrategy) == "Enforce" {
		opts.Strategy = StrategyEnforce
	}
	if !opts.Enabled {
		return opts, nil
	}

	root, err := r.Resolve(name, namespace)
	switch {
	case err == nil:
		opts.SecureRoot = root
		return opts, nil
	case !errors.Is(err, rcl.ErrNotFound):
		return Options{}, err
	case opts.Strategy == StrategyEnforce:
		return Options{}, fmt.Errorf("security enforced but no directory matches node %q in namespace %q: %w", name, namespace, err)
	}

	rcl.Logger().Warn("security is enabled but no security directory was found, running without security",
		"node", name,
		"namespace", namespace,
		"reason", err.Error())
	return opts, nil
}
