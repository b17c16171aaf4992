// Command seed creates an admin and a donor account and prints bearer tokens
// for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"bloodbank/internal/auth"
	"bloodbank/internal/config"
	"bloodbank/internal/database"
	"bloodbank/internal/model"
	"bloodbank/internal/repository"
	"bloodbank/pkg/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type account struct {
	username   string
	role       string
	bloodGroup string
}

func main() {
	password := flag.String("password", "changeme123", "password set on newly created accounts")
	donorGroup := flag.String("donor-blood-group", model.BloodGroupOPos, "blood group of the seeded donor")
	flag.Parse()

	log := logger.New(logger.Options{ServiceName: "bloodbank-seed", Format: "console"})
	ctx := context.Background()

	if err := run(ctx, *password, *donorGroup); err != nil {
		log.Error(ctx, "seed failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, password, donorGroup string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	donorGroup = model.NormalizeBloodGroup(donorGroup)
	if !model.IsValidBloodGroup(donorGroup) {
		return fmt.Errorf("unknown blood group %q", donorGroup)
	}

	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	signer := auth.NewSigner(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	for _, a := range []account{
		{username: "admin", role: model.RoleAdmin, bloodGroup: model.BloodGroupONeg},
		{username: "donor", role: model.RoleDonor, bloodGroup: donorGroup},
	} {
		user, err := ensureUser(ctx, users, a, password)
		if err != nil {
			return err
		}
		token, err := signer.Mint(user.ID, user.Role)
		if err != nil {
			return fmt.Errorf("mint token for %s: %w", user.Username, err)
		}
		fmt.Printf("%s (%s) id=%s\n  token: %s\n", user.Username, user.Role, user.ID, token)
	}
	return nil
}

func ensureUser(ctx context.Context, users repository.UserRepository, a account, password string) (*model.User, error) {
	existing, err := users.GetByUsername(ctx, a.username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup %s: %w", a.username, err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username:   a.username,
		Email:      a.username + "@bloodbank.local",
		Password:   string(hashed),
		Role:       a.role,
		BloodGroup: a.bloodGroup,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create %s: %w", a.username, err)
	}
	return user, nil
}
