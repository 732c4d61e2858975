// FILE: logkeep/src/cmd/auth-gen/main.go
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func main() {
	var (
		username = flag.String("u", "", "Username for basic auth")
		password = flag.String("p", "", "Password to hash (will prompt if not provided)")
		cost     = flag.Int("c", bcrypt.DefaultCost, "bcrypt cost factor (4-31)")
		genToken = flag.Bool("t", false, "Generate random bearer token")
		tokenLen = flag.Int("l", 32, "Token length in bytes")
	)

	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Generate authentication credentials for logkeep")
		fmt.Fprintln(os.Stderr, "\nUsage: auth-gen [options]")
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintln(os.Stderr, "  # Generate bcrypt hash for a basic auth user")
		fmt.Fprintln(os.Stderr, "  auth-gen -u admin")
		fmt.Fprintln(os.Stderr, "  ")
		fmt.Fprintln(os.Stderr, "  # Generate 64-byte bearer token")
		fmt.Fprintln(os.Stderr, "  auth-gen -t -l 64")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	var err error
	if *genToken {
		err = generateToken(*tokenLen)
	} else if *username == "" {
		flag.Usage()
		err = fmt.Errorf("username required for password hash generation")
	} else {
		err = generatePasswordHash(*username, *password, *cost)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generatePasswordHash(username, password string, cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if password == "" {
		pass1, err := promptPassword("Enter password: ")
		if err != nil {
			return err
		}
		pass2, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if pass1 != pass2 {
			return fmt.Errorf("passwords don't match")
		}
		password = pass1
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	fmt.Println("\n# TOML Configuration (add to logkeep.toml):")
	fmt.Println("[[api.auth.basic_auth.users]]")
	fmt.Printf("username = %q\n", username)
	fmt.Printf("password_hash = %q\n", string(hash))

	return nil
}

func generateToken(length int) error {
	if length < 16 {
		fmt.Fprintln(os.Stderr, "Warning: tokens < 16 bytes are cryptographically weak")
	}
	if length > 512 {
		return fmt.Errorf("token length exceeds maximum (512 bytes)")
	}

	token := make([]byte, length)
	if _, err := rand.Read(token); err != nil {
		return fmt.Errorf("failed to generate random bytes: %w", err)
	}

	b64 := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(token)

	fmt.Println("\n# TOML Configuration (add to logkeep.toml):")
	fmt.Printf("tokens = [%q]\n\n", b64)

	fmt.Println("# Generated Token:")
	fmt.Printf("Base64: %s\n", b64)
	fmt.Printf("Hex:    %x\n", token)

	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
