// Command healthcheck is the container probe for biolink. It exits non-zero
// when the server is unreachable or reports a fatal state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const probeTimeout = 5 * time.Second

type report struct {
	Status  string `json:"status"`
	Gateway string `json:"gateway"`
	Error   string `json:"error"`
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	r, err := probe(ctx, http.DefaultClient, target())
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		cancel()
		os.Exit(1)
	}
	if r.Status != "ok" {
		fmt.Fprintf(os.Stderr, "healthcheck: %s (gateway %s)\n", r.Status, r.Gateway)
	}
}

// target honours HEALTHCHECK_URL, else the local server on SERVER_PORT.
func target() string {
	if u := os.Getenv("HEALTHCHECK_URL"); u != "" {
		return u
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "3000"
	}
	return "http://localhost:" + port + "/health"
}

func probe(ctx context.Context, client *http.Client, url string) (report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return report{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return report{}, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return report{}, fmt.Errorf("reading body: %w", err)
	}
	return judge(resp.StatusCode, body)
}

var errFatal = errors.New("server reported fatal state")

// judge accepts ok and degraded reports; fatal or a non-200 status fails.
func judge(status int, body []byte) (report, error) {
	var r report
	if err := json.Unmarshal(body, &r); err != nil && status == http.StatusOK {
		return r, fmt.Errorf("undecodable health report: %w", err)
	}
	if r.Status == "fatal" {
		return r, fmt.Errorf("%w: %s", errFatal, r.Error)
	}
	if status != http.StatusOK {
		return r, fmt.Errorf("unexpected status %d", status)
	}
	return r, nil
}
