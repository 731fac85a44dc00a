package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"magicstream/internal/shared/config"
	"magicstream/internal/shared/database"
	"magicstream/internal/tokens"
	"magicstream/internal/users"
)

type Seeder struct {
	repo   users.Repository
	hasher *tokens.Hasher
}

func main() {
	fmt.Println("Starting MagicStream admin seeder...")
	_ = godotenv.Load()

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
	}

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{
		repo:   users.NewRepository(db.PostgreSQL),
		hasher: tokens.NewHasher(cfg.JWT.BcryptCost),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := seeder.SeedAdmin(ctx, email, password)
	if err != nil {
		log.Fatalf("Failed to seed admin: %v", err)
	}
	if created {
		fmt.Printf("Admin %s created\n", email)
	} else {
		fmt.Printf("Existing user %s promoted to admin\n", email)
	}
}

// SeedAdmin creates an admin account, or promotes the account that already
// owns email. The password of an existing account is left untouched.
func (s *Seeder) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	existing, err := s.repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return false, s.repo.UpdateUserRole(ctx, existing.Identity(), users.RoleAdmin)
	case !errors.Is(err, users.ErrUserNotFound):
		return false, err
	}

	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	admin := &users.User{
		FirstName: "Admin",
		LastName:  "User",
		Email:     email,
		Password:  hashedPassword,
		Role:      users.RoleAdmin,
	}
	if err := s.repo.CreateUser(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}
