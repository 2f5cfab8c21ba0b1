package security

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
)

const testNode = "dummy_node"

// newTree creates root/<dirs...> under a temp directory and returns root.
func newTree(t *testing.T, dirs ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755))
	}
	return root
}

func TestResolve_NoEnvironment(t *testing.T) {
	_, err := NewResolver(MapEnvironment{}).Resolve(testNode, "/test_security_directory")
	assert.ErrorIs(t, err, rcl.ErrNotFound)
}

func TestResolve_FailureScenarios(t *testing.T) {
	root := newTree(t, "test_security_directory/dummy_node")
	r := NewResolver(MapEnvironment{EnvRootDirectory: root})

	t.Run("wrong namespace", func(t *testing.T) {
		_, err := r.Resolve(testNode, "/some_other_namespace")
		assert.ErrorIs(t, err, rcl.ErrNotFound)
	})

	t.Run("wrong node name", func(t *testing.T) {
		_, err := r.Resolve("not_"+testNode, "/test_security_directory")
		assert.ErrorIs(t, err, rcl.ErrNotFound)
	})

	t.Run("no parent fallback", func(t *testing.T) {
		_, err := r.Resolve(testNode, "/test_security_directory/deeper")
		assert.ErrorIs(t, err, rcl.ErrNotFound)
	})

	t.Run("relative namespace", func(t *testing.T) {
		_, err := r.Resolve(testNode, "test_security_directory")
		assert.ErrorIs(t, err, rcl.ErrInvalidArgument)
	})

	t.Run("empty namespace", func(t *testing.T) {
		_, err := r.Resolve(testNode, "")
		assert.ErrorIs(t, err, rcl.ErrInvalidArgument)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := r.Resolve("", "/test_security_directory")
		assert.ErrorIs(t, err, rcl.ErrInvalidArgument)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "test_security_directory", "plain_file"), nil, 0o644))
		_, err := r.Resolve("plain_file", "/test_security_directory")
		assert.ErrorIs(t, err, rcl.ErrNotFound)
	})
}

func TestResolve_Exact(t *testing.T) {
	root := newTree(t, "test_security_directory/dummy_node")
	r := NewResolver(MapEnvironment{EnvRootDirectory: root})

	dir, err := r.Resolve(testNode, "/test_security_directory")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "test_security_directory", testNode), dir)
	assert.Equal(t, testNode, filepath.Base(dir))
}

func TestResolve_Prefix(t *testing.T) {
	root := newTree(t, "test_security_directory/dummy_node")
	exact, err := NewResolver(MapEnvironment{EnvRootDirectory: root}).Resolve(testNode, "/test_security_directory")
	require.NoError(t, err)

	suffixed := testNode + "_and_some_suffix_added"

	_, err = NewResolver(MapEnvironment{EnvRootDirectory: root}).Resolve(suffixed, "/test_security_directory")
	assert.ErrorIs(t, err, rcl.ErrNotFound, "exact lookup must not match a prefix")

	r := NewResolver(MapEnvironment{
		EnvRootDirectory: root,
		EnvLookupType:    "MATCH_PREFIX",
	})
	dir, err := r.Resolve(suffixed, "/test_security_directory")
	require.NoError(t, err)
	assert.Equal(t, exact, dir)
}

func TestResolve_RootNamespace(t *testing.T) {
	base := newTree(t, "test_security_directory/dummy_node")
	root := filepath.Join(base, "test_security_directory")
	want := filepath.Join(root, testNode)

	for _, lookup := range []string{"", "MATCH_EXACT", "bogus"} {
		t.Run("exact/"+lookup, func(t *testing.T) {
			env := MapEnvironment{EnvRootDirectory: root}
			if lookup != "" {
				env[EnvLookupType] = lookup
			}
			dir, err := NewResolver(env).Resolve(testNode, "/")
			require.NoError(t, err)
			assert.Equal(t, want, dir)
		})
	}

	t.Run("prefix", func(t *testing.T) {
		env := MapEnvironment{EnvRootDirectory: root, EnvLookupType: "MATCH_PREFIX"}
		dir, err := NewResolver(env).Resolve(testNode+"_and_some_suffix_added", "/")
		require.NoError(t, err)
		assert.Equal(t, want, dir)
	})
}

func TestResolve_NestedNamespace(t *testing.T) {
	root := newTree(t, "robot/arm/gripper")
	r := NewResolver(MapEnvironment{EnvRootDirectory: root})

	dir, err := r.Resolve("gripper", "/robot/arm")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "robot", "arm", "gripper"), dir)

	// Empty segments are ignored.
	dir, err = r.Resolve("gripper", "/robot//arm/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "robot", "arm", "gripper"), dir)
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	root := newTree(t, "ns/cam", "ns/camera", "ns/camera_front", "ns/zzz")
	require.NoError(t, os.WriteFile(filepath.Join(root, "ns", "camera_front_left"), nil, 0o644))

	r := NewResolver(MapEnvironment{EnvRootDirectory: root, EnvLookupType: "MATCH_PREFIX"})

	tests := []struct {
		node string
		want string
	}{
		{"camera_front_left", "camera_front"},
		{"camera_rear", "camera"},
		{"cam", "cam"},
		{"camel", "cam"},
	}

	for _, tt := range tests {
		t.Run(tt.node, func(t *testing.T) {
			dir, err := r.Resolve(tt.node, "/ns")
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, "ns", tt.want), dir)
		})
	}

	_, err := r.Resolve("lidar", "/ns")
	assert.ErrorIs(t, err, rcl.ErrNotFound)

	_, err = r.Resolve("camera", "/missing")
	assert.ErrorIs(t, err, rcl.ErrNotFound)
}

func TestResolve_NodeDirectoryOverride(t *testing.T) {
	override := t.TempDir()
	root := newTree(t, "test_security_directory/dummy_node")

	t.Run("valid override ignores name and namespace", func(t *testing.T) {
		r := NewResolver(MapEnvironment{EnvNodeDirectory: override})
		dir, err := r.Resolve("name shouldn't matter", "namespace shouldn't matter")
		require.NoError(t, err)
		assert.Equal(t, override, dir)
	})

	t.Run("root directory has no effect", func(t *testing.T) {
		r := NewResolver(MapEnvironment{EnvNodeDirectory: override, EnvRootDirectory: root})
		dir, err := r.Resolve(testNode, "/test_security_directory")
		require.NoError(t, err)
		assert.Equal(t, override, dir)
	})

	t.Run("missing override fails", func(t *testing.T) {
		r := NewResolver(MapEnvironment{
			EnvNodeDirectory: filepath.Join(override, "TheresN_oWayThi_sDirectory_Exists"),
			EnvRootDirectory: root,
		})
		_, err := r.Resolve(testNode, "/test_security_directory")
		assert.ErrorIs(t, err, rcl.ErrNotFound)
	})

	t.Run("empty override is ignored", func(t *testing.T) {
		r := NewResolver(MapEnvironment{EnvNodeDirectory: "", EnvRootDirectory: root})
		dir, err := r.Resolve(testNode, "/test_security_directory")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "test_security_directory", testNode), dir)
	})
}

func TestParseLookupType(t *testing.T) {
	assert.Equal(t, LookupPrefix, ParseLookupType("MATCH_PREFIX"))
	assert.Equal(t, LookupExact, ParseLookupType("MATCH_EXACT"))
	assert.Equal(t, LookupExact, ParseLookupType("match_prefix"))
	assert.Equal(t, LookupExact, ParseLookupType(""))
	assert.Equal(t, "MATCH_PREFIX", LookupPrefix.String())
}

func TestNodeOptions(t *testing.T) {
	root := newTree(t, "ns/talker")

	t.Run("disabled", func(t *testing.T) {
		opts, err := NodeOptions(MapEnvironment{EnvRootDirectory: root}, "talker", "/ns")
		require.NoError(t, err)
		assert.False(t, opts.Enabled)
		assert.Empty(t, opts.SecureRoot)
	})

	t.Run("enabled and found", func(t *testing.T) {
		env := MapEnvironment{EnvRootDirectory: root, EnvEnable: "true"}
		opts, err := NodeOptions(env, "talker", "/ns")
		require.NoError(t, err)
		assert.True(t, opts.Enabled)
		assert.Equal(t, StrategyPermissive, opts.Strategy)
		assert.Equal(t, filepath.Join(root, "ns", "talker"), opts.SecureRoot)
	})

	t.Run("enforce without directory", func(t *testing.T) {
		env := MapEnvironment{EnvRootDirectory: root, EnvEnable: "true", EnvStrategy: "Enforce"}
		_, err := NodeOptions(env, "listener", "/ns")
		assert.ErrorIs(t, err, rcl.ErrNotFound)
	})

	t.Run("permissive without directory warns", func(t *testing.T) {
		var buf bytes.Buffer
		rcl.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
		defer rcl.SetLogger(nil)

		env := MapEnvironment{EnvRootDirectory: root, EnvEnable: "true"}
		opts, err := NodeOptions(env, "listener", "/ns")
		require.NoError(t, err)
		assert.True(t, opts.Enabled)
		assert.Empty(t, opts.SecureRoot)
		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "listener")
	})

	t.Run("invalid namespace is not downgraded", func(t *testing.T) {
		env := MapEnvironment{EnvRootDirectory: root, EnvEnable: "true"}
		_, err := NodeOptions(env, "talker", "ns")
		assert.ErrorIs(t, err, rcl.ErrInvalidArgument)
	})

	t.Run("enable must be exactly true", func(t *testing.T) {
		opts, err := NodeOptions(MapEnvironment{EnvRootDirectory: root, EnvEnable: "TRUE"}, "talker", "/ns")
		require.NoError(t, err)
		assert.False(t, opts.Enabled)
	})
}

func TestGetSecureRoot_ProcessEnvironment(t *testing.T) {
	root := newTree(t, "ns/talker")
	t.Setenv(EnvNodeDirectory, "")
	t.Setenv(EnvLookupType, "")
	t.Setenv(EnvRootDirectory, root)

	dir, err := GetSecureRoot("talker", "/ns")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ns", "talker"), dir)
}
