package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/smartctx/sdch/internal/cache"
	"github.com/smartctx/sdch/internal/config"
	"github.com/smartctx/sdch/internal/store"
	"github.com/smartctx/sdch/internal/token"
)

// checkTimeout bounds each individual diagnostic probe.
const checkTimeout = 10 * time.Second

// checkResult is one diagnostic outcome.
type checkResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // ok, warn, fail
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check service dependencies and diagnose issues",
		Long: `Run diagnostics against the configured environment.

Checks:
  - Configuration validity
  - Tokenizer encoding data (downloaded on first use)
  - Database connectivity
  - Redis connectivity (when REDIS_URL is set)
  - Upload directory write access
  - Embedding provider (OpenAI key or static fallback)
  - Inbox directory (when INBOX_DIR is set)

Redis and OpenAI are non-critical: the service degrades to in-process
caching and deterministic local embeddings without them.`,
		Example: `  # Run diagnostics
  sdch doctor

  # JSON output for scripting
  sdch doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := runChecks(ctx)

	if jsonOutput {
		return printDoctorJSON(cmd, results)
	}
	printDoctorReport(cmd, results)

	for _, r := range results {
		if r.Status == "fail" && r.Required {
			return fmt.Errorf("diagnostics failed")
		}
	}
	return nil
}

func runChecks(ctx context.Context) []checkResult {
	var results []checkResult

	cfg, err := config.Load()
	if err != nil {
		results = append(results, checkResult{
			Name: "configuration", Status: "fail", Message: err.Error(), Required: true,
		})
		return results
	}
	results = append(results, checkResult{
		Name: "configuration", Status: "ok", Message: "loaded and validated", Required: true,
	})

	results = append(results, checkTokenizer())
	results = append(results, checkDatabase(ctx, cfg))
	if cfg.Storage.RedisURL != "" {
		results = append(results, checkRedis(ctx, cfg))
	}
	results = append(results, checkUploadDir(cfg))
	results = append(results, checkEmbeddings(cfg))
	if cfg.Storage.InboxDir != "" {
		results = append(results, checkInbox(cfg))
	}

	return results
}

func checkTokenizer() checkResult {
	r := checkResult{Name: "tokenizer", Required: true}
	if _, err := token.New(); err != nil {
		r.Status, r.Message = "fail", err.Error()
		return r
	}
	r.Status = "ok"
	r.Message = fmt.Sprintf("%s encoding loaded", token.EncodingName)
	return r
}

func checkDatabase(ctx context.Context, cfg *config.Config) checkResult {
	r := checkResult{Name: "database", Required: true}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st, err := store.Open(cfg.Storage.DatabaseURL)
	if err != nil {
		r.Status, r.Message = "fail", err.Error()
		return r
	}
	defer st.Close()

	count, err := st.CountDocuments(ctx)
	if err != nil {
		r.Status, r.Message = "fail", err.Error()
		return r
	}
	r.Status = "ok"
	r.Message = fmt.Sprintf("reachable, %d documents", count)
	return r
}

func checkRedis(ctx context.Context, cfg *config.Config) checkResult {
	r := checkResult{Name: "redis"}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.Storage.RedisURL)
	if err != nil {
		r.Status, r.Message = "fail", err.Error()
		return r
	}
	rdb, err := cache.Connect(ctx, opt.Addr, opt.Password, opt.DB)
	if err != nil {
		r.Status = "warn"
		r.Message = fmt.Sprintf("%v (artifact cache falls back to memory)", err)
		return r
	}
	defer rdb.Close()

	r.Status, r.Message = "ok", "reachable"
	return r
}

func checkUploadDir(cfg *config.Config) checkResult {
	r := checkResult{Name: "upload directory", Required: true}
	dir := cfg.Storage.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status, r.Message = "fail", err.Error()
		return r
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		r.Status = "fail"
		r.Message = fmt.Sprintf("not writable: %v", err)
		return r
	}
	_ = os.Remove(probe)
	r.Status = "ok"
	r.Message = fmt.Sprintf("%s writable", dir)
	return r
}

func checkEmbeddings(cfg *config.Config) checkResult {
	r := checkResult{Name: "embeddings"}
	if cfg.Embedding.OpenAIKey == "" {
		r.Status = "warn"
		r.Message = "OPENAI_API_KEY not set, using static fallback embeddings"
		return r
	}
	r.Status = "ok"
	r.Message = fmt.Sprintf("OpenAI configured (%s)", cfg.Embedding.Model)
	return r
}

func checkInbox(cfg *config.Config) checkResult {
	r := checkResult{Name: "inbox directory"}
	if err := os.MkdirAll(cfg.Storage.InboxDir, 0o755); err != nil {
		r.Status, r.Message = "fail", err.Error()
		return r
	}
	r.Status = "ok"
	r.Message = cfg.Storage.InboxDir
	return r
}

// doctorStyles holds the report color scheme. Styles are empty (no
// escape codes) when stdout is not a terminal.
type doctorStyles struct {
	ok   lipgloss.Style
	warn lipgloss.Style
	fail lipgloss.Style
	dim  lipgloss.Style
}

func newDoctorStyles() doctorStyles {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return doctorStyles{
			ok:   lipgloss.NewStyle(),
			warn: lipgloss.NewStyle(),
			fail: lipgloss.NewStyle(),
			dim:  lipgloss.NewStyle(),
		}
	}
	return doctorStyles{
		ok:   lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")),
		warn: lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")),
		fail: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444")),
		dim:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280")),
	}
}

func printDoctorReport(cmd *cobra.Command, results []checkResult) {
	styles := newDoctorStyles()
	failures := 0
	for _, r := range results {
		var mark string
		switch r.Status {
		case "ok":
			mark = styles.ok.Render("✓")
		case "warn":
			mark = styles.warn.Render("!")
		default:
			mark = styles.fail.Render("✗")
			if r.Required {
				failures++
			}
		}
		cmd.Printf("%s %-18s %s\n", mark, r.Name, styles.dim.Render(r.Message))
	}

	cmd.Println()
	if failures > 0 {
		cmd.Println(styles.fail.Render(fmt.Sprintf("%d critical check(s) failed", failures)))
	} else {
		cmd.Println(styles.ok.Render("All critical checks passed"))
	}
}

func printDoctorJSON(cmd *cobra.Command, results []checkResult) error {
	status := "ok"
	for _, r := range results {
		if r.Status == "fail" && r.Required {
			status = "fail"
			break
		}
	}
	out := struct {
		Status string        `json:"status"`
		Checks []checkResult `json:"checks"`
	}{Status: status, Checks: results}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if status == "fail" {
		return fmt.Errorf("diagnostics failed")
	}
	return nil
}
