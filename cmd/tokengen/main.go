// Command tokengen mints access and refresh tokens for local development
// and API testing. It signs with whatever PASSQ_JWT_SECRET is set to, so a
// token minted here validates against a server running with the same secret.
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

	"passq/internal/token"
)

const devSigningKey = "dev-signing-key-change-me-locally-0"

func main() {
	var (
		kind      = flag.String("type", "access", "token type: access or refresh")
		userID    = flag.String("user-id", "", "user ID (UUID, generated if empty)")
		sessionID = flag.String("session-id", "", "session ID (UUID, generated if empty)")
		scope     = flag.String("scope", "vault", "comma-separated scopes (access tokens only)")
		ttl       = flag.Duration("ttl", 15*time.Minute, "access token time-to-live")
		issuer    = flag.String("issuer", "passq-auth", "token issuer")
		audience  = flag.String("audience", "passq-api", "token audience")
		asJSON    = flag.Bool("json", false, "output as JSON")
	)
	flag.Parse()

	if err := run(*kind, *userID, *sessionID, *scope, *issuer, *audience, *ttl, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
}

func run(kind, userID, sessionID, scope, issuer, audience string, ttl time.Duration, asJSON bool) error {
	signingKey := os.Getenv("PASSQ_JWT_SECRET")
	if signingKey == "" {
		signingKey = devSigningKey
		fmt.Fprintln(os.Stderr, "warning: PASSQ_JWT_SECRET not set, using dev key")
	}
	if userID == "" {
		userID = uuid.NewString()
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	tokens := token.New([]byte(signingKey), issuer, audience, ttl, 7*24*time.Hour)

	var signed, jti string
	var err error
	switch kind {
	case "access":
		signed, jti, err = tokens.IssueAccess(context.Background(), userID, sessionID, strings.Split(scope, ","))
	case "refresh":
		signed, jti, err = tokens.IssueRefresh(context.Background(), userID, sessionID)
	default:
		return fmt.Errorf("unknown token type %q", kind)
	}
	if err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{
			"token":      signed,
			"type":       kind,
			"jti":        jti,
			"user_id":    userID,
			"session_id": sessionID,
		})
	}
	fmt.Printf("user_id:    %s\nsession_id: %s\njti:        %s\n\n%s\n", userID, sessionID, jti, signed)
	return nil
}
