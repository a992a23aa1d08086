package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shield4u/pagescope/internal/extract"
	"github.com/shield4u/pagescope/internal/render"
	"github.com/shield4u/pagescope/internal/scope"
	"github.com/shield4u/pagescope/internal/techdetect"
)

/**
 * Crawl Check Utility
 *
 * Renders a single URL through the same pipeline the service runs and
 * prints the extraction report as JSON, with no callback endpoint or HTTP
 * server in the way.
 *
 * Usage:
 *   go run cmd/crawlcheck/main.go [flags] <url>
 *
 * Flags:
 *   -renderer chrome|static   renderer to use (default chrome)
 *   -timeout <seconds>        render timeout (default 60)
 *   -settle <ms>              post-load settle delay (default 1000)
 *   -depth <n>                remaining depth echoed in the report
 *   -subdomains               treat subdomains of the target as in scope
 *   -policy <file>            YAML scope policy override
 *   -cookie name=value        cookie set before navigation (repeatable)
 *   -pretty                   indent the report JSON
 *
 * CHROME_PATH from the environment (or .env) picks the browser binary.
 */

// cookieFlags collects repeated -cookie name=value flags.
type cookieFlags map[string]string

func (c cookieFlags) String() string {
	pairs := make([]string, 0, len(c))
	for name, value := range c {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (c cookieFlags) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return fmt.Errorf("cookie must be name=value, got %q", value)
	}
	c[parts[0]] = parts[1]
	return nil
}

func main() {
	// Logs go to stderr so the report JSON stays pipeable
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment variables for CHROME_PATH and friends
	godotenv.Load(".env.local", ".env")

	cookies := cookieFlags{}
	rendererName := flag.String("renderer", "chrome", "renderer to use (chrome or static)")
	timeoutSec := flag.Int("timeout", 60, "render timeout in seconds")
	settleMS := flag.Int("settle", 1000, "post-load settle delay in milliseconds")
	depth := flag.Int("depth", 0, "remaining depth echoed in the report")
	includeSubdomains := flag.Bool("subdomains", false, "treat subdomains of the target as in scope")
	policyFile := flag.String("policy", "", "YAML scope policy override file")
	pretty := flag.Bool("pretty", false, "indent the report JSON")
	flag.Var(cookies, "cookie", "cookie set before navigation as name=value (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: crawlcheck [flags] <url>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	targetURL := flag.Arg(0)

	// Assemble the scope policy
	policy := scope.DefaultPolicy()
	if *policyFile != "" {
		loaded, err := scope.LoadPolicy(*policyFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", *policyFile).Msg("Failed to load scope policy")
		}
		policy = loaded
	}
	if *includeSubdomains {
		policy.IncludeSubdomains = true
	}

	// One-shot tool, one session is all it needs
	renderConfig := render.DefaultConfig()
	renderConfig.ChromePath = os.Getenv("CHROME_PATH")
	renderConfig.Timeout = time.Duration(*timeoutSec) * time.Second
	renderConfig.Settle = time.Duration(*settleMS) * time.Millisecond
	renderConfig.MaxSessions = 1

	var renderer render.Renderer
	switch *rendererName {
	case "static":
		renderer = render.NewStaticRenderer(renderConfig, policy)
	case "chrome":
		renderer = render.NewChromeRenderer(renderConfig, policy)
	default:
		log.Fatal().Str("renderer", *rendererName).Msg("Unknown renderer, expected chrome or static")
	}

	detector, err := techdetect.New()
	if err != nil {
		log.Warn().Err(err).Msg("Technology fingerprinting unavailable")
	}
	extractor := extract.NewExtractor(policy, detector)

	// Synthetic ids so the report carries the same shape the service emits
	taskID := uuid.New().String()
	parentID := uuid.New().String()

	log.Info().
		Str("task_id", taskID).
		Str("target_url", targetURL).
		Str("renderer", *rendererName).
		Msg("Rendering")

	ctx := context.Background()
	started := time.Now()
	page, err := renderer.Render(ctx, targetURL, cookies)
	if err != nil {
		log.Fatal().Err(err).Str("target_url", targetURL).Msg("Render failed")
	}
	log.Info().
		Str("final_url", page.FinalURL).
		Int("status", page.Status).
		Dur("duration_ms", time.Since(started)).
		Msg("Rendered")

	report := extractor.Extract(ctx, &extract.Request{
		TaskID:         taskID,
		ParentID:       parentID,
		TargetURL:      targetURL,
		RemainingDepth: *depth,
	}, page)

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode report")
	}
}
