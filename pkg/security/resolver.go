package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
)

// Environment variables read by the resolver.
const (
	EnvRootDirectory = "ROS_SECURITY_ROOT_DIRECTORY"
	EnvNodeDirectory = "ROS_SECURITY_NODE_DIRECTORY"
	EnvLookupType    = "ROS_SECURITY_LOOKUP_TYPE"
)

// Environment provides environment variable lookups.
type Environment interface {
	LookupEnv(key string) (string, bool)
}

// OSEnvironment reads the process environment.
type OSEnvironment struct{}

// LookupEnv implements Environment.
func (OSEnvironment) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapEnvironment is a fixed environment, mostly useful in tests.
type MapEnvironment map[string]string

// LookupEnv implements Environment.
func (m MapEnvironment) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// LookupType selects how node names are matched against directory names.
type LookupType int

const (
	// LookupExact requires a directory named exactly like the node
	LookupExact LookupType = iota
	// LookupPrefix accepts the longest directory name that prefixes the node name
	LookupPrefix
)

// ParseLookupType maps a ROS_SECURITY_LOOKUP_TYPE value to a LookupType.
// Anything other than MATCH_PREFIX selects exact matching.
func ParseLookupType(value string) LookupType {
	if value == "MATCH_PREFIX" {
		return LookupPrefix
	}
	return LookupExact
}

func (l LookupType) String() string {
	if l == LookupPrefix {
		return "MATCH_PREFIX"
	}
	return "MATCH_EXACT"
}

// Resolver resolves security directories against an environment.
type Resolver struct {
	env Environment
}

// NewResolver creates a Resolver reading env. A nil env reads the process
// environment.
func NewResolver(env Environment) *Resolver {
	if env == nil {
		env = OSEnvironment{}
	}
	return &Resolver{env: env}
}

// GetSecureRoot resolves the security directory of a node using the process
// environment.
func GetSecureRoot(name, namespace string) (string, error) {
	return NewResolver(OSEnvironment{}).Resolve(name, namespace)
}

func (r *Resolver) lookup(key string) string {
	v, _ := r.env.LookupEnv(key)
	return v
}

// Resolve returns the security directory of the node called name in
// namespace. The error matches rcl.ErrNotFound when no directory applies and
// rcl.ErrInvalidArgument for malformed input.
func (r *Resolver) Resolve(name, namespace string) (string, error) {
	if override := r.lookup(EnvNodeDirectory); override != "" {
		if !isDir(override) {
			return "", fmt.Errorf("%w: %s %q is not a directory", rcl.ErrNotFound, EnvNodeDirectory, override)
		}
		return override, nil
	}

	root := r.lookup(EnvRootDirectory)
	if root == "" {
		return "", fmt.Errorf("%w: %s is not set", rcl.ErrNotFound, EnvRootDirectory)
	}
	if name == "" {
		return "", rcl.InvalidArgumentf("node name cannot be empty")
	}
	if !strings.HasPrefix(namespace, "/") {
		return "", rcl.InvalidArgumentf("namespace %q must start with '/'", namespace)
	}

	base := filepath.Join(append([]string{root}, namespaceSegments(namespace)...)...)

	switch ParseLookupType(r.lookup(EnvLookupType)) {
	case LookupPrefix:
		match, err := longestPrefixMatch(base, name)
		if err != nil {
			return "", err
		}
		return filepath.Join(base, match), nil
	default:
		dir := filepath.Join(base, name)
		if !isDir(dir) {
			return "", fmt.Errorf("%w: no security directory %q", rcl.ErrNotFound, dir)
		}
		return dir, nil
	}
}

// namespaceSegments splits a namespace into path segments, skipping empty
// ones. The root namespace has none.
func namespaceSegments(namespace string) []string {
	var segments []string
	for _, s := range strings.Split(namespace, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// longestPrefixMatch returns the longest subdirectory name of base that is a
// prefix of name. Entries are scanned in sorted order and only a strictly
// longer match replaces the current one, so ties resolve to the
// lexicographically smallest name.
func longestPrefixMatch(base, name string) (string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("%w: cannot list %q: %v", rcl.ErrNotFound, base, err)
	}

	best := ""
	for _, entry := range entries {
		candidate := entry.Name()
		if len(candidate) <= len(best) || !strings.HasPrefix(name, candidate) {
			continue
		}
		if !isDir(filepath.Join(base, candidate)) {
			continue
		}
		best = candidate
	}

	if best == "" {
		return "", fmt.Errorf("%w: no directory in %q prefixes %q", rcl.ErrNotFound, base, name)
	}
	return best, nil
}

// isDir follows symlinks.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
