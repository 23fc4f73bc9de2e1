package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/crewlens/crewlens/internal/backend"
	"github.com/crewlens/crewlens/internal/layout"
)

// DoctorCommand returns the CLI command definition for the 'doctor'
// subcommand, which verifies crewlens is properly configured.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Run checks to verify crewlens is properly configured.

This command checks:
  - Config file discovery and syntax
  - Effective configuration sanity
  - Backend REST reachability
  - Backend update stream reachability

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a config file (overrides discovery)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDoctor(ctx, version, cmd.String("config"))
		},
	}
}

type checkResult struct {
	Name       string
	Status     string // "pass", "warn", "fail"
	Message    string
	Suggestion string
	IsCritical bool
}

// doctorEnv abstracts the probes so checks are testable without a live
// backend or a real home directory.
type doctorEnv interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	PingBackend(ctx context.Context, baseURL string) error
	DialStream(ctx context.Context, streamURL string) error
}

type realDoctorEnv struct{}

func (r *realDoctorEnv) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realDoctorEnv) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }

func (r *realDoctorEnv) PingBackend(ctx context.Context, baseURL string) error {
	return backend.NewClient(baseURL).Ping(ctx)
}

func (r *realDoctorEnv) DialStream(ctx context.Context, streamURL string) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st := backend.NewStream(streamURL)
	if err := st.Dial(dialCtx); err != nil {
		return err
	}
	st.Close()
	return nil
}

func runDoctor(ctx context.Context, version, configPath string) error {
	cfg, err := LoadEffectiveConfig(configPath)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		return err
	}
	return runDoctorWithEnv(ctx, version, cfg, &realDoctorEnv{})
}

func runDoctorWithEnv(ctx context.Context, version string, cfg *Config, env doctorEnv) error {
	fmt.Printf("🔍 crewlens doctor v%s\n\n", version)

	checks := []func(ctx context.Context, cfg *Config, env doctorEnv) checkResult{
		checkGlobalConfig,
		checkProjectConfig,
		checkDirection,
		checkBackendReachable,
		checkStreamReachable,
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		result := check(ctx, cfg, env)
		results = append(results, result)
		printCheckResult(result)
	}

	fmt.Println()
	summary := summarizeResults(results)
	printSummary(summary)

	if summary.FailCount > 0 {
		return fmt.Errorf("found %d issues that need attention", summary.FailCount)
	}

	return nil
}

func printCheckResult(result checkResult) {
	var icon string
	switch result.Status {
	case "pass":
		icon = "✓"
	case "warn":
		icon = "⚠"
	case "fail":
		icon = "✗"
	}

	fmt.Printf("%s %s\n", icon, result.Message)

	if result.Suggestion != "" {
		fmt.Printf("  %s\n", result.Suggestion)
	}
}

type resultSummary struct {
	PassCount int
	WarnCount int
	FailCount int
}

func summarizeResults(results []checkResult) resultSummary {
	var summary resultSummary
	for _, r := range results {
		switch r.Status {
		case "pass":
			summary.PassCount++
		case "warn":
			summary.WarnCount++
		case "fail":
			summary.FailCount++
		}
	}
	return summary
}

func printSummary(summary resultSummary) {
	if summary.FailCount > 0 {
		fmt.Printf("❌ Found %d issue(s) that need attention\n", summary.FailCount)
		if summary.WarnCount > 0 {
			fmt.Printf("⚠️  %d warning(s)\n", summary.WarnCount)
		}
	} else if summary.WarnCount > 0 {
		fmt.Printf("✅ All critical checks passed!\n")
		fmt.Printf("⚠️  %d optional warning(s)\n", summary.WarnCount)
		fmt.Printf("💡 Run 'crewlens serve --verbose' to start\n")
	} else {
		fmt.Printf("✅ All checks passed!\n")
		fmt.Printf("💡 Run 'crewlens serve --verbose' to start\n")
	}
}

// checkYAMLFile validates that a config file, if present, parses.
func checkYAMLFile(env doctorEnv, name, path string, missingStatus string) checkResult {
	if path == "" {
		return checkResult{
			Name:    name,
			Status:  missingStatus,
			Message: fmt.Sprintf("No %s config location available", name),
		}
	}
	if _, err := env.Stat(path); err != nil {
		return checkResult{
			Name:       name,
			Status:     missingStatus,
			Message:    fmt.Sprintf("No %s config at %s", name, path),
			Suggestion: "Optional; defaults and flags apply",
		}
	}
	data, err := env.ReadFile(path)
	if err != nil {
		return checkResult{
			Name:       name,
			Status:     "fail",
			Message:    fmt.Sprintf("Could not read %s config", name),
			Suggestion: fmt.Sprintf("Error reading %s: %v", path, err),
			IsCritical: true,
		}
	}
	var probe Config
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return checkResult{
			Name:       name,
			Status:     "fail",
			Message:    fmt.Sprintf("%s config is not valid YAML", name),
			Suggestion: fmt.Sprintf("Error parsing %s: %v", path, err),
			IsCritical: true,
		}
	}
	return checkResult{
		Name:    name,
		Status:  "pass",
		Message: fmt.Sprintf("%s config OK: %s", name, path),
	}
}

func checkGlobalConfig(_ context.Context, _ *Config, env doctorEnv) checkResult {
	return checkYAMLFile(env, "global", GlobalConfigPath(), "warn")
}

func checkProjectConfig(_ context.Context, _ *Config, env doctorEnv) checkResult {
	path, err := FindProjectConfig()
	if err != nil {
		return checkResult{
			Name:       "project",
			Status:     "warn",
			Message:    "No project config (.crewlens.yaml) found",
			Suggestion: "Optional; defaults and flags apply",
		}
	}
	return checkYAMLFile(env, "project", path, "warn")
}

func checkDirection(_ context.Context, cfg *Config, _ doctorEnv) checkResult {
	if cfg.Direction == string(layout.Vertical) || cfg.Direction == string(layout.Horizontal) {
		return checkResult{
			Name:    "direction",
			Status:  "pass",
			Message: fmt.Sprintf("Layout direction: %s", cfg.Direction),
		}
	}
	return checkResult{
		Name:       "direction",
		Status:     "fail",
		Message:    fmt.Sprintf("Invalid layout direction %q", cfg.Direction),
		Suggestion: "Set direction to vertical or horizontal",
		IsCritical: true,
	}
}

func checkBackendReachable(ctx context.Context, cfg *Config, env doctorEnv) checkResult {
	if cfg.ReplayDir != "" {
		return checkResult{
			Name:    "backend",
			Status:  "pass",
			Message: fmt.Sprintf("Replay mode: reading %s, no backend needed", cfg.ReplayDir),
		}
	}
	if err := env.PingBackend(ctx, cfg.BackendURL); err != nil {
		return checkResult{
			Name:       "backend",
			Status:     "fail",
			Message:    fmt.Sprintf("Backend unreachable at %s", cfg.BackendURL),
			Suggestion: fmt.Sprintf("Error: %v\n  Is the backend running?", err),
			IsCritical: true,
		}
	}
	return checkResult{
		Name:    "backend",
		Status:  "pass",
		Message: fmt.Sprintf("Backend reachable at %s", cfg.BackendURL),
	}
}

func checkStreamReachable(ctx context.Context, cfg *Config, env doctorEnv) checkResult {
	if cfg.ReplayDir != "" {
		return checkResult{
			Name:    "stream",
			Status:  "pass",
			Message: "Replay mode: update stream not used",
		}
	}
	streamURL := cfg.EffectiveStreamURL()
	if err := env.DialStream(ctx, streamURL); err != nil {
		return checkResult{
			Name:       "stream",
			Status:     "warn",
			Message:    fmt.Sprintf("Update stream unreachable at %s", streamURL),
			Suggestion: fmt.Sprintf("Error: %v\n  Live updates will not work; REST endpoints may still", err),
		}
	}
	return checkResult{
		Name:    "stream",
		Status:  "pass",
		Message: fmt.Sprintf("Update stream reachable at %s", streamURL),
	}
}
