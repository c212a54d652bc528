//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/food-passport/api/internal/domain"
	pconfig "github.com/food-passport/api/internal/platform/config"
	pfirestore "github.com/food-passport/api/internal/platform/firestore"
	"github.com/food-passport/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestPassportRepositoriesIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "passport-test", EmulatorHost: endpoint})
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	if err := registry.Users().Insert(ctx, domain.User{ID: "u1", Username: "lan", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := registry.Users().UpdatePassport(ctx, "u1", func(u *domain.User) error {
				u.Passport = append(u.Passport, domain.PassportEntry{FoodKey: "pho", CheckinAt: now.Add(time.Duration(i) * time.Minute)})
				return nil
			})
			if err != nil && !repositories.IsConflict(err) {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	user, err := registry.Users().FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	recent, err := registry.Checkins().Recent(ctx, 100)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != user.EntryCount() {
		t.Fatalf("checkins out of sync with passport: %d vs %d", len(recent), user.EntryCount())
	}

	top, err := registry.Users().TopByEntryCount(ctx, 1)
	if err != nil || len(top) != 1 || top[0].ID != "u1" {
		t.Fatalf("unexpected leaderboard %+v err=%v", top, err)
	}

	boom := errors.New("boom")
	if _, err := registry.Users().UpdatePassport(ctx, "u1", func(*domain.User) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected mutation error to surface, got %v", err)
	}
	if _, err := registry.Users().UpdatePassport(ctx, "ghost", func(*domain.User) error { return nil }); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready at %s", endpoint)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
