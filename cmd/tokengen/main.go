// Command tokengen prints a bearer token for a user id, signed with the
// configured secret. Development only.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Molian/internal/adapters/auth"
	"github.com/dkeye/Molian/internal/config"
	"github.com/dkeye/Molian/internal/domain"
)

func main() {
	user := flag.String("user", "", "user id to put in the sub claim")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to token_ttl from config")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	uid := domain.UserID(*user)
	if !uid.Valid() {
		log.Fatal().Str("user", *user).Msg("-user is required (1..64 chars)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}

	token, err := auth.NewJWTVerifier(cfg.Secret, lifetime).Issue(uid)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}
	fmt.Println(token)
}
