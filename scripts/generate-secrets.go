package main

import (
	"fmt"
	"os"

	"marks-access/internal/auth"
	"marks-access/internal/config"
)

// Prints a JWT signing secret and the bcrypt hash of the admin password
// given as the first argument, ready to paste into .env.
func main() {
	if len(os.Args) != 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: go run ./scripts/generate-secrets.go <admin-password>")
		os.Exit(2)
	}

	secret, err := auth.GenerateRandomToken(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate JWT secret: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.NewService(&config.JWTConfig{}).HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash admin password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Add these to your .env file:")
	fmt.Println("----------------------------------------")
	fmt.Printf("JWT_SECRET=%s\n", secret)
	// single quotes keep the $ signs of the bcrypt hash intact
	fmt.Printf("ADMIN_PASSWORD_HASH='%s'\n", hash)
}
