package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-inventory/internal/utils"
	"github.com/smarttransit/seat-inventory/pkg/jwt"
)

func main() {
	devToken := flag.Bool("dev-token", false, "also print a development admin token signed with the new secret")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the development token")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for SmartTransit")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateJWTSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("✅ Secret generated successfully!")
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)

	if *devToken {
		userID := uuid.New()
		token, err := jwt.NewService(secret, *ttl).GenerateAccessToken(userID, []string{jwt.RoleAdmin, jwt.RoleAgent})
		if err != nil {
			log.Fatalf("Failed to sign development token: %v", err)
		}
		fmt.Println()
		fmt.Printf("Development admin token (user %s, valid %s):\n", userID, *ttl)
		fmt.Println(token)
	}

	fmt.Println()
	fmt.Println("⚠️  IMPORTANT: Keep this secret safe and never commit it to version control!")
	fmt.Println("===========================================")
}
