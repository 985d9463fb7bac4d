package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"
)

// system spawns a coordinator and two region binaries against high test
// ports, mirroring torua's TestSystem helper in distributed_storage_test.go
// but exercising the ride-handoff surface instead of key/value storage.
type system struct {
	t          *testing.T
	coord      *exec.Cmd
	regions    []*exec.Cmd
	coordAddr  string
	regionAddr map[string]string
	httpClient *http.Client
}

func newSystem(t *testing.T) *system {
	return &system{
		t:         t,
		coordAddr: "http://127.0.0.1:19080",
		regionAddr: map[string]string{
			"Phoenix": "http://127.0.0.1:19081",
			"LA":      "http://127.0.0.1:19082",
		},
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *system) start() error {
	if _, err := os.Stat("./bin/coordinator"); os.IsNotExist(err) {
		return fmt.Errorf("coordinator binary not found at ./bin/coordinator in this package's directory (from the repository root run 'go build -o test/integration/bin/coordinator ./cmd/coordinator' first)")
	}
	if _, err := os.Stat("./bin/region"); os.IsNotExist(err) {
		return fmt.Errorf("region binary not found at ./bin/region in this package's directory (from the repository root run 'go build -o test/integration/bin/region ./cmd/region' first)")
	}

	cfgPath, err := s.writeConfig()
	if err != nil {
		return err
	}

	for name, addr := range s.regionAddr {
		cmd := exec.Command("./bin/region")
		cmd.Env = append(os.Environ(),
			"REGION_NAME="+name,
			"REGION_LISTEN="+listenFromURL(addr),
		)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start region %s: %w", name, err)
		}
		s.regions = append(s.regions, cmd)
		if err := s.waitForOK(addr + "/health"); err != nil {
			return fmt.Errorf("region %s not ready: %w", name, err)
		}
	}

	s.coord = exec.Command("./bin/coordinator")
	s.coord.Env = append(os.Environ(),
		"COORDINATOR_ADDR="+listenFromURL(s.coordAddr),
		"COORDINATOR_CONFIG="+cfgPath,
	)
	s.coord.Stdout, s.coord.Stderr = os.Stdout, os.Stderr
	if err := s.coord.Start(); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	return s.waitForOK(s.coordAddr + "/health")
}

func (s *system) writeConfig() (string, error) {
	f, err := os.CreateTemp("", "ridefleet-*.yaml")
	if err != nil {
		return "", err
	}
	defer f.Close()

	fmt.Fprintf(f, "regions:\n")
	for name, addr := range s.regionAddr {
		fmt.Fprintf(f, "  %s: %q\n", name, addr)
	}
	return f.Name(), nil
}

func listenFromURL(url string) string {
	// "http://127.0.0.1:19081" -> ":19081"
	i := bytes.LastIndexByte([]byte(url), ':')
	return url[i:]
}

func (s *system) stop() {
	for _, r := range s.regions {
		if r != nil && r.Process != nil {
			r.Process.Kill()
			r.Wait()
		}
	}
	if s.coord != nil && s.coord.Process != nil {
		s.coord.Process.Kill()
		s.coord.Wait()
	}
}

func (s *system) waitForOK(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", url)
		default:
			resp, err := s.httpClient.Get(url)
			if err == nil && resp.StatusCode == http.StatusOK {
				resp.Body.Close()
				return nil
			}
			if resp != nil {
				resp.Body.Close()
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (s *system) createRide(region, rideID string) (int, error) {
	ride := map[string]any{
		"rideId":   rideID,
		"status":   "IN_PROGRESS",
		"fare":     12.5,
		"region":   region,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	body, _ := json.Marshal(ride)
	resp, err := s.httpClient.Post(s.regionAddr[region]+"/rides", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *system) handoff(rideID, source, target string) (map[string]any, error) {
	req := map[string]string{"rideId": rideID, "source": source, "target": target}
	body, _ := json.Marshal(req)
	resp, err := s.httpClient.Post(s.coordAddr+"/handoff", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *system) getRide(region, rideID string) (int, error) {
	resp, err := s.httpClient.Get(s.regionAddr[region] + "/rides/" + rideID)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// TestHappyPathHandoff exercises spec §8 scenario 1: a ride migrates from
// Phoenix to LA and disappears from Phoenix.
func TestHappyPathHandoff(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sys := newSystem(t)
	if err := sys.start(); err != nil {
		t.Skipf("could not start test system: %v", err)
	}
	defer sys.stop()

	if status, err := sys.createRide("Phoenix", "R-1"); err != nil || status != http.StatusCreated {
		t.Fatalf("create ride: status=%d err=%v", status, err)
	}

	result, err := sys.handoff("R-1", "Phoenix", "LA")
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if result["status"] != "SUCCESS" {
		t.Fatalf("expected SUCCESS, got %v (reason=%v)", result["status"], result["reason"])
	}

	if status, _ := sys.getRide("LA", "R-1"); status != http.StatusOK {
		t.Fatalf("expected R-1 present at LA, got status %d", status)
	}
	if status, _ := sys.getRide("Phoenix", "R-1"); status != http.StatusNotFound {
		t.Fatalf("expected R-1 absent at Phoenix, got status %d", status)
	}
}

// TestTargetDuplicateIsAborted exercises spec §8 scenario 2: a ride already
// present at the target aborts the handoff without mutating either side.
func TestTargetDuplicateIsAborted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sys := newSystem(t)
	if err := sys.start(); err != nil {
		t.Skipf("could not start test system: %v", err)
	}
	defer sys.stop()

	if status, err := sys.createRide("Phoenix", "R-2"); err != nil || status != http.StatusCreated {
		t.Fatalf("create ride at Phoenix: status=%d err=%v", status, err)
	}
	if status, err := sys.createRide("LA", "R-2"); err != nil || status != http.StatusCreated {
		t.Fatalf("create ride at LA: status=%d err=%v", status, err)
	}

	result, err := sys.handoff("R-2", "Phoenix", "LA")
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if result["status"] != "ABORTED" || result["reason"] != "duplicate" {
		t.Fatalf("expected ABORTED/duplicate, got %v/%v", result["status"], result["reason"])
	}

	if status, _ := sys.getRide("Phoenix", "R-2"); status != http.StatusOK {
		t.Fatalf("expected R-2 still present at Phoenix, got status %d", status)
	}
}
