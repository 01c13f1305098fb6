package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"chat_gateway/internal/auth"
)

// admin-token mints a signed admin JWT for the management endpoints. The
// signing secret comes from JWT_SECRET, the same variable the gateway reads.
func main() {
	subject := flag.String("subject", "admin", "token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ERROR: JWT_SECRET must be set")
		os.Exit(1)
	}

	token, err := auth.GenerateAdminJWT(*subject, []byte(secret), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
