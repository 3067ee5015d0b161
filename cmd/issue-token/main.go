package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/service"
)

// issue-token mints a learner token for local testing. Production tokens come
// from the account provider.
func main() {
	ttl := flag.Duration("ttl", 2*time.Hour, "Token lifetime")
	askSecret := flag.Bool("ask-secret", false, "Prompt for the signing secret instead of reading JWT_SECRET")
	flag.Parse()

	cfg := config.Load()
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Learner Token ===")

	fmt.Print("Enter User ID: ")
	userID, _ := reader.ReadString('\n')
	userID = strings.TrimSpace(userID)
	if userID == "" {
		fmt.Println("Error: User ID is required")
		return
	}

	fmt.Print("Enter Name (optional): ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)

	secret := cfg.JWTSecret
	if *askSecret {
		fmt.Print("Enter Signing Secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading secret")
			return
		}
		secret = string(raw)
	}
	if len(secret) < 8 {
		fmt.Println("Error: Secret must be at least 8 characters")
		return
	}

	now := time.Now()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
		Name: name,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		return
	}

	fmt.Println("\nToken:")
	fmt.Println(token)
}
