package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
	"github.com/rmacdonaldsmith/rcl-go/internal/transport/remote"
	"github.com/rmacdonaldsmith/rcl-go/pkg/security"
)

// startBridge serves a bridge over a fresh transport on a loopback port.
func startBridge(t *testing.T, config remote.Config) (*intraprocess.Transport, string) {
	t.Helper()

	tr := intraprocess.New()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	config.ListenAddress = lis.Addr().String()
	srv, err := remote.NewServer(&config, tr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
		_ = tr.Close()
	})
	return tr, lis.Addr().String()
}

func execute(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand(viper.New())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestPublishCommand(t *testing.T) {
	tr, addr := startBridge(t, remote.Config{})

	sub, err := tr.CreateSubscription("/chatter", intraprocess.QoS{})
	require.NoError(t, err)

	out, err := execute(context.Background(), "--server", addr, "publish", "/chatter", "hello", "--count", "2", "--interval", "0")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Published to /chatter"))

	for i := 0; i < 2; i++ {
		data, ok, err := sub.Take()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "hello", string(data))
	}
	assert.Equal(t, 0, tr.CountPublishers("/chatter"), "publisher is destroyed on exit")
}

func TestPublishCommand_Args(t *testing.T) {
	_, err := execute(context.Background(), "publish", "/chatter")
	assert.Error(t, err)
}

func TestWatchCommand(t *testing.T) {
	tr, addr := startBridge(t, remote.Config{})

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := execute(context.Background(), "--server", addr, "watch", "/chatter", "--count", "2", "--idle", "5s")
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool {
		return tr.CountSubscribers("/chatter") == 1
	}, 5*time.Second, 10*time.Millisecond)

	pub, err := tr.CreatePublisher("/chatter", intraprocess.QoS{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish([]byte("one")))
	require.NoError(t, pub.Publish([]byte("two")))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "📨 /chatter: one")
		assert.Contains(t, r.out, "📨 /chatter: two")
		assert.Contains(t, r.out, "Liveliness changed: alive=1 (+1)")
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not finish")
	}

	assert.Eventually(t, func() bool {
		return tr.CountSubscribers("/chatter") == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchCommand_Idle(t *testing.T) {
	_, addr := startBridge(t, remote.Config{})

	_, err := execute(context.Background(), "--server", addr, "watch", "/quiet", "--idle", "100ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no activity")
}

func TestWatchCommand_Interrupted(t *testing.T) {
	_, addr := startBridge(t, remote.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "--server", addr, "watch", "/chatter")
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestHealthCommand(t *testing.T) {
	_, addr := startBridge(t, remote.Config{})

	require.Eventually(t, func() bool {
		out, err := execute(context.Background(), "--server", addr, "health")
		return err == nil && strings.Contains(out, "Status: SERVING")
	}, 5*time.Second, 20*time.Millisecond)

	out, err := execute(context.Background(), "--server", addr, "--json", "health")
	require.NoError(t, err)

	var resp healthpb.HealthCheckResponse
	require.NoError(t, protojson.Unmarshal([]byte(strings.TrimSpace(out)), &resp))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestLoginFlag(t *testing.T) {
	tr, addr := startBridge(t, remote.Config{AuthRequired: true, AuthSecret: "s3cret"})

	_, err := execute(context.Background(), "--server", addr, "publish", "/chatter", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthenticated")

	sub, err := tr.CreateSubscription("/chatter", intraprocess.QoS{})
	require.NoError(t, err)

	_, err = execute(context.Background(), "--server", addr, "--login", "--client-id", "tester", "publish", "/chatter", "hi")
	require.NoError(t, err)

	data, ok, err := sub.Take()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", string(data))
}

func TestServerFromEnvironment(t *testing.T) {
	_, addr := startBridge(t, remote.Config{})
	t.Setenv("RCL_SERVER", addr)

	assert.Eventually(t, func() bool {
		_, err := execute(context.Background(), "health")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSecureRootCommand(t *testing.T) {
	t.Setenv(security.EnvNodeDirectory, "")
	t.Setenv(security.EnvLookupType, "")
	t.Setenv(security.EnvEnable, "")

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ns", "camera"), 0o755))

	t.Run("exact", func(t *testing.T) {
		out, err := execute(context.Background(), "secure-root", "--root", root, "--name", "camera", "--namespace", "/ns")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "ns", "camera"), strings.TrimSpace(out))
	})

	t.Run("prefix", func(t *testing.T) {
		out, err := execute(context.Background(), "secure-root", "--root", root, "--lookup", "MATCH_PREFIX",
			"--name", "camera_front", "--namespace", "/ns")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "ns", "camera"), strings.TrimSpace(out))
	})

	t.Run("root from environment", func(t *testing.T) {
		t.Setenv(security.EnvRootDirectory, root)
		out, err := execute(context.Background(), "secure-root", "--name", "camera", "--namespace", "/ns")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "ns", "camera"), strings.TrimSpace(out))
	})

	t.Run("json", func(t *testing.T) {
		t.Setenv(security.EnvEnable, "true")
		out, err := execute(context.Background(), "--json", "secure-root", "--root", root, "--name", "camera", "--namespace", "/ns")
		require.NoError(t, err)
		assert.Contains(t, out, `"enabled": true`)
		assert.Contains(t, out, `"strategy": "Permissive"`)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := execute(context.Background(), "secure-root", "--root", root, "--name", "lidar", "--namespace", "/ns")
		assert.Error(t, err)
	})

	t.Run("name required", func(t *testing.T) {
		_, err := execute(context.Background(), "secure-root", "--root", root)
		assert.Error(t, err)
	})
}
