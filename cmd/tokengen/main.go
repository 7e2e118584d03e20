// Package main mints bearer tokens for the certledger API. Tokens are signed
// with JWT_SIGNING_KEY, or the development key when it is unset, so they only
// work against a server configured with the same key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"certledger/internal/platform/auth"
	"certledger/internal/platform/config"
)

type tokenOutput struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	Subject   string `json:"subject"`
	Role      string `json:"role"`
	ExpiresIn string `json:"expires_in"`
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	subject := flag.String("subject", "registrar", "Token subject, recorded as the actor of lifecycle operations")
	role := flag.String("role", auth.RoleIssuer, fmt.Sprintf("Role to grant, one of %v", auth.ValidRoles))
	ttl := flag.Duration("ttl", cfg.Server.TokenTTL, "Token time-to-live")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	tokens := auth.NewTokenService(cfg.Server.JWTSigningKey, cfg.Server.TokenIssuer, cfg.Server.TokenAudience, *ttl)
	token, err := tokens.GenerateToken(context.Background(), *subject, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}

	if !*asJSON {
		fmt.Println(token)
		return
	}
	out := tokenOutput{
		Token:     token,
		Type:      "Bearer",
		Subject:   *subject,
		Role:      *role,
		ExpiresIn: ttl.String(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
