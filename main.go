package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/proofledger/internal/api"
	"github.com/hazyhaar/proofledger/internal/auth"
	"github.com/hazyhaar/proofledger/internal/export"
	"github.com/hazyhaar/proofledger/internal/identity"
	"github.com/hazyhaar/proofledger/internal/mcp"
	"github.com/hazyhaar/proofledger/pkg/chassis"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "export":
		cmdExport(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "hash-password":
		cmdHashPassword(os.Args[2:])
	case "version":
		fmt.Printf("proofledger %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`proofledger - verifiable composting contribution ledger

Usage:
  proofledger serve [--config config.toml] [--addr :8080]
  proofledger mcp [--config config.toml] [--identity ID]
  proofledger check [--config config.toml]
  proofledger export [--config config.toml] [--out file.jsonl] [--raw] [--salt S] [--submitter ID]
  proofledger token [--config config.toml] --identity ID
  proofledger hash-password [password]
  proofledger version
  proofledger help

Commands:
  serve          Start the HTTP API (and HTTP/3 when configured)
  mcp            Serve the MCP tools over stdio
  check          Verify the ledger invariants
  export         Write submissions as JSONL
  token          Issue a JWT for an identity
  hash-password  Print a bcrypt hash for a principal entry
  version        Print version
  help           Show this help`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	app, err := newApp(ctx, cfg, true)
	if err != nil {
		log.Fatalf("starting: %v", err)
	}
	defer app.Close()

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	for _, p := range cfg.Auth.Principals {
		id, err := identity.Normalize(p.Identity)
		if err != nil {
			log.Fatalf("auth.principals: %v", err)
		}
		a.AddPrincipal(id, p.PasswordHash)
	}

	apiHandler := api.New(app.endpoints, a, app.clock)
	if app.metrics != nil {
		apiHandler.SetMetricsHandler(cfg.Metrics.Path, app.metrics.Handler())
	}
	if app.auditLog != nil {
		apiHandler.SetAuditReader(app.auditLog)
	}
	if app.traces != nil {
		apiHandler.SetTraceSummarizer(app.traces)
	}
	handler := apiHandler.Handler()

	var h3 *chassis.Server
	if cfg.Server.HTTP3Addr != "" {
		h3, err = chassis.New(chassis.Config{
			Addr:     cfg.Server.HTTP3Addr,
			CertFile: cfg.Server.CertFile,
			KeyFile:  cfg.Server.KeyFile,
			Handler:  handler,
		})
		if err != nil {
			log.Fatalf("HTTP/3: %v", err)
		}
		handler = h3.AltSvc(handler)
		go func() {
			if err := h3.Start(ctx); err != nil {
				slog.Error("HTTP/3 server", "error", err)
			}
		}()
	}

	if app.metrics != nil {
		go trackHeight(ctx, app)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if h3 != nil {
			_ = h3.Stop(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("proofledger listening",
		"addr", cfg.Server.Addr,
		"http3", cfg.Server.HTTP3Addr,
		"backend", cfg.Store.Backend,
		"version", version,
		"binary", api.BinaryHash(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

// trackHeight keeps the block height gauge current.
func trackHeight(ctx context.Context, app *app) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		app.metrics.ObserveHeight(app.clock.Height())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	asID := fs.String("identity", "", "identity tool calls act as (overrides config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *asID != "" {
		cfg.MCP.Identity = *asID
	}
	caller, err := identity.Normalize(cfg.MCP.Identity)
	if err != nil {
		log.Fatalf("mcp.identity: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, true)
	if err != nil {
		log.Fatalf("starting: %v", err)
	}
	defer app.Close()

	srv := mcp.NewServer(app.endpoints, caller, version)
	slog.Info("mcp server on stdio", "identity", caller, "backend", cfg.Store.Backend)
	if err := server.ServeStdio(srv); err != nil {
		log.Fatalf("mcp: %v", err)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	ctx := context.Background()
	cfg := loadConfig(*configPath)
	app, err := newApp(ctx, cfg, false)
	if err != nil {
		log.Fatalf("opening ledger: %v", err)
	}
	defer app.Close()

	violations, err := app.ledger.CheckInvariants(ctx)
	if err != nil {
		log.Fatalf("check: %v", err)
	}
	if len(violations) == 0 {
		fmt.Println("ok")
		return
	}
	for _, v := range violations {
		fmt.Println(v.String())
	}
	app.Close()
	os.Exit(1)
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	out := fs.String("out", "", "output file (default stdout)")
	raw := fs.Bool("raw", false, "keep real identities")
	salt := fs.String("salt", "", "anonymization salt (default random)")
	submitter := fs.String("submitter", "", "export a single identity")
	fs.Parse(args)

	ctx := context.Background()
	cfg := loadConfig(*configPath)
	app, err := newApp(ctx, cfg, false)
	if err != nil {
		log.Fatalf("opening ledger: %v", err)
	}
	defer app.Close()

	opts := export.Options{Raw: *raw, Salt: []byte(*salt)}
	if *submitter != "" {
		if opts.Submitter, err = identity.Normalize(*submitter); err != nil {
			log.Fatalf("--submitter: %v", err)
		}
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("creating %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	stats, err := export.WriteJSONL(ctx, app.ledger, bw, opts)
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	if err := bw.Flush(); err != nil {
		log.Fatalf("export: %v", err)
	}
	slog.Info("export done", "submissions", stats.Submissions, "identities", stats.Identities)
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	id := fs.String("identity", "", "identity to issue the token for")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	normalized, err := identity.Normalize(*id)
	if err != nil {
		log.Fatalf("--identity: %v", err)
	}
	token, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin).GenerateToken(normalized)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	fmt.Println(token)
}

func cmdHashPassword(args []string) {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("reading password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		log.Fatalf("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hashing: %v", err)
	}
	fmt.Println(hash)
}
