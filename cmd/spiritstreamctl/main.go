// Command spiritstreamctl is the CLI front-end for spiritstreamd's control
// surface: start, stop, status, and rotate-keys, each a single HTTP call
// against SPIRITSTREAM_HOST:SPIRITSTREAM_PORT.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ScopeCreep-zip/spiritstream/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: spiritstreamctl <start|stop|status|rotate-keys> [flags]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "spiritstreamctl: %v\n", err)
		return 70
	}

	client := &http.Client{Timeout: 10 * time.Second}
	baseURL := "http://" + cfg.Addr()

	switch args[0] {
	case "start":
		return cmdStart(client, baseURL, cfg.APIToken, args[1:], stdout, stderr)
	case "stop":
		return cmdStop(client, baseURL, cfg.APIToken, stdout, stderr)
	case "status":
		return cmdStatus(client, baseURL, cfg.APIToken, stdout, stderr)
	case "rotate-keys":
		return cmdRotateKeys(client, baseURL, cfg.APIToken, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "spiritstreamctl: unknown command %q\n", args[0])
		return 2
	}
}

func cmdStart(client *http.Client, baseURL, token string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	password := fs.String("password", "", "password for a sealed profile")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: spiritstreamctl start <profile-name> [--password PASS]")
		return 2
	}
	name := fs.Arg(0)

	body, _ := json.Marshal(map[string]string{"password": *password})
	resp, err := doRequest(client, http.MethodPost, baseURL+"/v1/profiles/"+name+"/start", token, body)
	if err != nil {
		fmt.Fprintf(stderr, "spiritstreamctl: %v\n", err)
		return 70
	}
	defer resp.Body.Close()
	if code := exitCodeForStatus(resp.StatusCode); code != 0 {
		printErrorBody(stderr, resp)
		return code
	}
	_, _ = io.Copy(stdout, resp.Body)
	fmt.Fprintln(stdout)
	return 0
}

func cmdStop(client *http.Client, baseURL, token string, stdout, stderr io.Writer) int {
	resp, err := doRequest(client, http.MethodPost, baseURL+"/v1/stop", token, nil)
	if err != nil {
		fmt.Fprintf(stderr, "spiritstreamctl: %v\n", err)
		return 70
	}
	defer resp.Body.Close()
	if code := exitCodeForStatus(resp.StatusCode); code != 0 {
		printErrorBody(stderr, resp)
		return code
	}
	return 0
}

func cmdStatus(client *http.Client, baseURL, token string, stdout, stderr io.Writer) int {
	resp, err := doRequest(client, http.MethodGet, baseURL+"/v1/status", token, nil)
	if err != nil {
		fmt.Fprintf(stderr, "spiritstreamctl: %v\n", err)
		return 70
	}
	defer resp.Body.Close()
	if code := exitCodeForStatus(resp.StatusCode); code != 0 {
		printErrorBody(stderr, resp)
		return code
	}
	_, _ = io.Copy(stdout, resp.Body)
	fmt.Fprintln(stdout)
	return 0
}

func cmdRotateKeys(client *http.Client, baseURL, token string, stdout, stderr io.Writer) int {
	resp, err := doRequest(client, http.MethodPost, baseURL+"/v1/rotate-keys", token, nil)
	if err != nil {
		fmt.Fprintf(stderr, "spiritstreamctl: %v\n", err)
		return 70
	}
	defer resp.Body.Close()
	if code := exitCodeForStatus(resp.StatusCode); code != 0 {
		printErrorBody(stderr, resp)
		return code
	}
	return 0
}

func doRequest(client *http.Client, method, url, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

// exitCodeForStatus maps an HTTP response status to the CLI exit codes
// named in the control-surface contract: 0 success, 2 invalid argument, 3
// not found, 4 auth failed, 5 conflict, 70 internal error.
func exitCodeForStatus(status int) int {
	switch {
	case status >= 200 && status < 300:
		return 0
	case status == http.StatusBadRequest:
		return 2
	case status == http.StatusNotFound:
		return 3
	case status == http.StatusUnauthorized:
		return 4
	case status == http.StatusConflict, status == http.StatusTooManyRequests:
		return 5
	default:
		return 70
	}
}

func printErrorBody(stderr io.Writer, resp *http.Response) {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		fmt.Fprintf(stderr, "spiritstreamctl: %s\n", body.Error)
		return
	}
	fmt.Fprintf(stderr, "spiritstreamctl: request failed with status %d\n", resp.StatusCode)
}
