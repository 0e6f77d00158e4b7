package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/service"
)

func main() {
	var (
		learnerID string
		locale    string
		ttl       time.Duration
		prompt    bool
	)
	flag.StringVar(&learnerID, "learner", "", "Learner ID to issue the token for")
	flag.StringVar(&locale, "locale", "", "Preferred locale claim (en, id)")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	flag.BoolVar(&prompt, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	if learnerID == "" {
		fmt.Print("Enter Learner ID: ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		learnerID = strings.TrimSpace(line)
	}
	if learnerID == "" {
		fmt.Println("Error: Learner ID is required")
		os.Exit(1)
	}

	secret := cfg.JWTSecret
	if prompt {
		fmt.Print("Enter Signing Secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // Newline after secret input
		if err != nil {
			fmt.Println("Error reading secret")
			os.Exit(1)
		}
		secret = string(raw)
	}
	if len(secret) < 16 {
		fmt.Println("Error: signing secret must be at least 16 characters")
		os.Exit(1)
	}

	// ─── Issue ─────────────────────────────────────────────────────────
	token, err := service.NewAuthService(secret).IssueLearnerToken(learnerID, locale, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	log.Info().Str("learner_id", learnerID).Dur("ttl", ttl).Msg("Issued learner token")
	fmt.Println(token)
}
