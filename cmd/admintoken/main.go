// Command admintoken prints a bearer token for the pipeline admin endpoints.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bissquit/content-notifier/internal/config"
	"github.com/bissquit/content-notifier/internal/domain"
	"github.com/bissquit/content-notifier/internal/identity/jwt"
	"github.com/joho/godotenv"
)

func main() {
	subject := flag.String("subject", "admin", "token subject")
	role := flag.String("role", string(domain.RoleAdmin), "token role (viewer or admin)")
	flag.Parse()

	if err := run(*subject, domain.Role(*role)); err != nil {
		fmt.Fprintln(os.Stderr, "admintoken:", err)
		os.Exit(1)
	}
}

func run(subject string, role domain.Role) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if !role.HasPermission(domain.RoleViewer) {
		return fmt.Errorf("unknown role %q", role)
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = config.DefaultFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	auth := jwt.NewAuthenticator(jwt.Config{
		SecretKey:           cfg.Auth.JWTSecret,
		Issuer:              cfg.Auth.JWTIssuer,
		AccessTokenDuration: cfg.Auth.AdminTokenTTL,
	})
	token, expiresAt, err := auth.GenerateToken(subject, role)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
