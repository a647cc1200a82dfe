// Package main is a development utility for generating a seed admin user with a
// random password and its bcrypt hash pre-computed. It prints the raw password,
// the hash, and a ready-to-run SQL INSERT statement so developers can quickly
// bootstrap a usable admin account in a local database without running the full
// server flow. Do not use generated accounts in production; create users through
// the API so passwords never touch the shell history.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	randomBytes := make([]byte, 18)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatalf("Failed to generate random password: %v", err)
	}
	password := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(randomBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	fmt.Println("Seed admin account for local development")
	fmt.Println("========================================")
	fmt.Printf("Username: admin\n")
	fmt.Printf("Password: %s\n", password)
	fmt.Printf("Hash:     %s\n", string(hash))
	fmt.Println()
	fmt.Println("SQL:")
	fmt.Printf("INSERT INTO users (id, username, name, password_hash, role, active, created_at, updated_at)\n")
	fmt.Printf("VALUES (gen_random_uuid(), 'admin', 'Administrator', '%s', 'admin', true, NOW(), NOW());\n", string(hash))
}
