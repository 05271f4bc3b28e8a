// ABOUTME: Entry point for portald, the portal service host
// ABOUTME: Serves identity, catalog, enrollment and grading, mints tokens and checks health

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/2389/portal-core/internal/auth"
	"github.com/2389/portal-core/internal/config"
	"github.com/2389/portal-core/internal/portal"
	"github.com/2389/portal-core/internal/server"
)

// Version is set at build time.
var version = "dev"

const banner = `
                  _        _     _
  _ __   ___  _ __| |_ __ _| | __| |
 | '_ \ / _ \| '__| __/ _' | |/ _' |
 | |_) | (_) | |  | || (_| | | (_| |
 | .__/ \___/|_|   \__\__,_|_|\__,_|
 |_|
`

// getConfigPath returns the path to the portal config file.
// Priority: PORTAL_CONFIG env var > ./portal.yaml > XDG_CONFIG_HOME/portal/portal.yaml > ~/.config/portal/portal.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PORTAL_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("portal.yaml"); err == nil {
		return "portal.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "portal.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "portal", "portal.yaml")
}

// loadConfig reads the config file. Without one, defaults are used with the
// secret from PORTAL_JWT_SECRET.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg, err := config.Default(os.Getenv("PORTAL_JWT_SECRET"))
		if err != nil {
			return nil, "", fmt.Errorf("no config at %s and defaults are unusable: %w", path, err)
		}
		return cfg, "(defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: portald <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  serve [identity|catalog|enrollment|grading|all ...]   Run services (default: all)")
	fmt.Println("  init [--path FILE]                                    Write a config with a random secret")
	fmt.Println("  token --user-id ID --username NAME --role ROLE        Mint a token with the shared secret")
	fmt.Println("  health [--ready] [service]                            Check a service's HTTP health endpoint")
	fmt.Println("  version                                               Print the version")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PORTAL_CONFIG      Config file path (YAML, or TOML by .toml extension)")
	fmt.Println("  PORTAL_JWT_SECRET  Secret used when no config file exists")
	fmt.Println()
}

func runServe(ctx context.Context, args []string) error {
	names, err := portal.ParseServices(args)
	if err != nil {
		return err
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Validation: %s\n", cfg.Auth.Validation)
	for _, name := range names {
		green.Print("    ▶ ")
		fmt.Printf("%-11s gRPC %s  HTTP %s\n", name+":", grpcAddrOf(cfg, name), httpAddrOf(cfg, name))
	}
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale:  ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting portald", "config", configPath, "services", strings.Join(names, ","))

	var tailnet *server.Tailnet
	if cfg.Tailscale.Enabled {
		tailnet, err = server.StartTailnet(ctx, cfg.Tailscale, logger)
		if err != nil {
			return err
		}
		defer tailnet.Close()
	}

	rt := portal.NewRuntime(portal.Options{Config: cfg, Logger: logger, Tailnet: tailnet})
	return rt.RunAll(ctx, names)
}

// runInit writes a starter config with a random secret.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("path", getConfigPath(), "config file to create")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*path); err == nil {
		return fmt.Errorf("%s already exists", *path)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(secretBytes)

	content := fmt.Sprintf(`# portald configuration
# Generated by portald init

auth:
  jwt_secret: "%s"
  validation: "local"   # or "delegated" to ask the identity service
  identity_addr: "localhost:50051"

logging:
  level: "info"
  format: "text"

identity:
  grpc_addr: ":50051"
  http_addr: ":8081"
  database:
    driver: "sqlite"
    dsn: "./data/identity.db"

catalog:
  grpc_addr: ":50052"
  http_addr: ":8082"
  database:
    driver: "sqlite"
    dsn: "./data/catalog.db"

enrollment:
  grpc_addr: ":50053"
  http_addr: ":8083"

grading:
  grpc_addr: ":50054"
  http_addr: ":8084"
  enrollment_addr: "localhost:50053"
  database:
    driver: "sqlite"
    dsn: "./data/grades.db"
`, secret)

	if err := os.MkdirAll(filepath.Dir(*path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(*path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	color.Green("  ✓ Created config: %s", *path)
	return nil
}

// runToken mints a token offline with the configured secret.
func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user-id", "", "subject id (random when empty)")
	username := fs.String("username", "", "username claim")
	role := fs.String("role", "student", "student or faculty")
	ttl := fs.Duration("ttl", 0, "token lifetime (default identity.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := auth.ParseRole(*role)
	if err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("--username is required")
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if *ttl <= 0 {
		*ttl = cfg.Identity.TokenTTL
	}

	issuer, err := auth.NewLocalValidator([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, expiresAt, err := issuer.Generate(*userID, *username, r, *ttl)
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "user_id=%s role=%s expires=%s\n", *userID, r, expiresAt.Format(time.RFC3339))
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	ready := fs.Bool("ready", false, "check readiness instead of liveness")
	if err := fs.Parse(args); err != nil {
		return err
	}
	names, err := portal.ParseServices(fs.Args())
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	path := "/health"
	if *ready {
		path = "/health/ready"
	}

	var failed []string
	for _, name := range names {
		body, err := probe(ctx, httpAddrOf(cfg, name), path)
		if err != nil {
			color.Red("  ✗ %-10s %v", name, err)
			failed = append(failed, name)
			continue
		}
		color.Green("  ✓ %-10s %s", name, body)
	}
	if len(failed) > 0 {
		return fmt.Errorf("unhealthy: %s", strings.Join(failed, ", "))
	}
	return nil
}

func probe(ctx context.Context, addr, path string) (string, error) {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func grpcAddrOf(cfg *config.Config, name string) string {
	switch name {
	case portal.ServiceIdentity:
		return cfg.Identity.GRPCAddr
	case portal.ServiceCatalog:
		return cfg.Catalog.GRPCAddr
	case portal.ServiceEnrollment:
		return cfg.Enrollment.GRPCAddr
	default:
		return cfg.Grading.GRPCAddr
	}
}

func httpAddrOf(cfg *config.Config, name string) string {
	switch name {
	case portal.ServiceIdentity:
		return cfg.Identity.HTTPAddr
	case portal.ServiceCatalog:
		return cfg.Catalog.HTTPAddr
	case portal.ServiceEnrollment:
		return cfg.Enrollment.HTTPAddr
	default:
		return cfg.Grading.HTTPAddr
	}
}
