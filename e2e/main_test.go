//go:build e2e

package e2e

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

const (
	testEmail    = "e2e@example.com"
	testPassword = "testpass123"
)

var appURL string

func TestMain(m *testing.M) {
	os.Exit(runTestMain(m))
}

func runTestMain(m *testing.M) int {
	// Build from the module root whether go test runs in e2e/ or the root.
	root := ".."
	if _, err := os.Stat(filepath.Join(root, "cmd", "budgetly")); os.IsNotExist(err) {
		root = "."
	}

	tmp, err := os.MkdirTemp("", "budgetly-e2e")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmp)

	buildPath := filepath.Join(tmp, "budgetly")
	build := exec.Command("go", "build", "-o", buildPath, "./cmd/budgetly")
	build.Dir = root
	if output, err := build.CombinedOutput(); err != nil {
		fmt.Printf("Failed to build app: %v\n%s\n", err, output)
		return 1
	}

	port := "18081"
	appURL = "http://localhost:" + port

	server := exec.Command(buildPath)
	server.Env = append(os.Environ(),
		"PORT="+port,
		"DATA_BACKEND=sqlite",
		"SQLITE_DB_PATH="+filepath.Join(tmp, "e2e.db"),
		"AMQP_URL=",
		"BOOTSTRAP_EMAIL="+testEmail,
		"BOOTSTRAP_PASSWORD="+testPassword,
		"LOG_LEVEL=warn",
	)
	server.Stdout = os.Stdout
	server.Stderr = os.Stderr
	if err := server.Start(); err != nil {
		fmt.Printf("Failed to start server: %v\n", err)
		return 1
	}
	defer func() {
		_ = server.Process.Signal(os.Interrupt)
		_ = server.Wait()
	}()

	ready := false
	for range 50 {
		time.Sleep(100 * time.Millisecond)
		resp, err := http.Get(appURL + "/readyz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
	}
	if !ready {
		fmt.Println("Server did not become ready")
		return 1
	}

	return m.Run()
}
