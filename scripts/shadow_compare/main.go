// Command shadow_compare replays read-only endpoints against the Go API and
// the legacy admission system, then diffs status codes and bodies. It is run
// during cutover to catch regressions before traffic is switched over.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type targetsFile struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

// volatileKeys are envelope fields that differ on every request and must not
// count as a diff.
var volatileKeys = map[string]bool{
	"request_id": true,
	"timestamp":  true,
	"created_at": true,
	"updated_at": true,
}

func main() {
	var (
		goBase      string
		legacyBase  string
		token       string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "Legacy admission API base URL")
	flag.StringVar(&token, "token", os.Getenv("SHADOW_COMPARE_TOKEN"), "Bearer token sent to both APIs")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results      []result
		breaking     int
		optionalDiff int
	)

	for _, t := range targets {
		res := compareTarget(client, goBase, legacyBase, token, t)
		if res.Error != nil {
			if t.Critical {
				breaking++
			}
		} else if !res.StatusMatch || !res.BodyMatch {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f targetsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return f.Targets, nil
}

func compareTarget(client *http.Client, goBase, legacyBase, token string, tgt target) result {
	res := result{Target: tgt}
	goResp, goDur, goErr := performRequest(client, goBase, token, tgt)
	legacyResp, legacyDur, legacyErr := performRequest(client, legacyBase, token, tgt)
	res.DurationGo = goDur
	res.DurationLegacy = legacyDur

	if goErr != nil {
		res.Error = fmt.Errorf("go request failed: %w", goErr)
		return res
	}
	if legacyErr != nil {
		res.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return res
	}

	res.GoStatus = goResp.StatusCode
	res.LegacyStatus = legacyResp.StatusCode
	res.StatusMatch = res.GoStatus == res.LegacyStatus

	defer goResp.Body.Close()
	defer legacyResp.Body.Close()

	goBody, err := io.ReadAll(goResp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read go body: %w", err)
		return res
	}
	legacyBody, err := io.ReadAll(legacyResp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read legacy body: %w", err)
		return res
	}

	res.BodyMatch = bodiesEqual(goBody, legacyBody)

	return res
}

func performRequest(client *http.Client, base, token string, tgt target) (*http.Response, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimRight(base, "/") + path

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

// normalize strips volatile keys and collapses whole-number floats so that
// numeric encoding differences between the two stacks do not register as
// diffs.
func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k := range val {
			if volatileKeys[k] {
				delete(val, k)
			}
		}
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []result) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		fmt.Printf("  Go Status: %d (%s)\n", res.GoStatus, res.DurationGo)
		fmt.Printf("  Legacy Status: %d (%s)\n", res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
