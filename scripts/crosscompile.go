package main

// crosscompile.go builds release binaries of noise-concert-map for the
// platforms the map server is deployed on. The version string is baked in
// through -ldflags so the Server header and -version report it.
//
// Usage (from the repository root):
//
//	go run ./scripts
//	NCM_VERSION=1.4.0 go run ./scripts -jobs 8

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const binaryName = "noise-concert-map"

type target struct {
	OS   string
	Arch string
}

var targets = []target{
	{"linux", "amd64"}, {"linux", "arm64"}, {"linux", "arm"}, {"linux", "386"},
	{"darwin", "amd64"}, {"darwin", "arm64"},
	{"windows", "amd64"}, {"windows", "386"}, {"windows", "arm64"},
	{"freebsd", "amd64"}, {"openbsd", "amd64"},
}

// supportsDuckDB reports whether the DuckDB driver can be linked for t.
// go-duckdb ships static libraries for these platforms only.
func supportsDuckDB(t target) bool {
	switch t.OS {
	case "linux", "windows":
		return t.Arch == "amd64"
	case "darwin":
		return t.Arch == "amd64" || t.Arch == "arm64"
	}
	return false
}

// outputPath lays binaries out as binaries/<version>/<os>/<arch>/<name>.
func outputPath(root, version string, t target) string {
	dir := t.OS
	if dir == "darwin" {
		dir = "mac"
	}
	name := binaryName
	if t.OS == "windows" {
		name += ".exe"
	}
	return filepath.Join(root, "binaries", version, dir, t.Arch, name)
}

// buildArgs returns the go command line and extra environment for t.
func buildArgs(version, out string, t target) (args, env []string) {
	ldflags := fmt.Sprintf("-s -w -X 'main.CompileVersion=%s'", version)
	args = []string{"build", "-trimpath", "-ldflags", ldflags}
	env = []string{"GOOS=" + t.OS, "GOARCH=" + t.Arch, "CGO_ENABLED=0"}
	if supportsDuckDB(t) {
		args = append(args, "-tags", "duckdb")
		env[2] = "CGO_ENABLED=1"
	}
	args = append(args, "-o", out, ".")
	return args, env
}

// gitVersion prefers NCM_VERSION, then `git describe`.
func gitVersion() (string, error) {
	if v := os.Getenv("NCM_VERSION"); v != "" {
		return v, nil
	}
	out, err := exec.Command("git", "describe", "--tags", "--always", "--dirty").Output()
	if err != nil {
		return "", fmt.Errorf("git describe: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

type result struct {
	target target
	err    error
}

func main() {
	jobs := flag.Int("jobs", runtime.NumCPU(), "Parallel builds")
	flag.Parse()

	version, err := gitVersion()
	if err != nil {
		log.Fatalf("Error getting version: %v", err)
	}
	root, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Building %s version %s\n", binaryName, version)

	work := make(chan target)
	results := make(chan result)
	for i := 0; i < max(1, *jobs); i++ {
		go func() {
			for t := range work {
				out := outputPath(root, version, t)
				if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
					results <- result{t, err}
					continue
				}
				args, env := buildArgs(version, out, t)
				cmd := exec.Command("go", args...)
				cmd.Env = append(os.Environ(), env...)
				if msg, err := cmd.CombinedOutput(); err != nil {
					_ = os.RemoveAll(filepath.Dir(out))
					results <- result{t, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(msg)))}
					continue
				}
				results <- result{t, nil}
			}
		}()
	}
	go func() {
		for _, t := range targets {
			work <- t
		}
		close(work)
	}()

	failed := 0
	for range targets {
		r := <-results
		if r.err != nil {
			failed++
			log.Printf("%s/%s failed: %v", r.target.OS, r.target.Arch, r.err)
			continue
		}
		fmt.Printf("Successfully built %s for %s/%s\n", binaryName, r.target.OS, r.target.Arch)
	}

	latest := filepath.Join(root, "binaries", "latest")
	_ = os.Remove(latest)
	if err := os.Symlink(version, latest); err != nil {
		log.Printf("Warning: Failed to create symlink 'latest': %v", err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
