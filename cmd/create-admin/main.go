package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/chryzcode/ycsyh-site/internal/users"
	"github.com/chryzcode/ycsyh-site/pkg/config"
	"github.com/chryzcode/ycsyh-site/pkg/db"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/security"
)

const (
	defaultEmail          = "admin@ycsyh.com"
	defaultName           = "Admin User"
	generatedPasswordSize = 20
	minPasswordLength     = 8
)

type adminInput struct {
	Email    string
	Password string
	Name     string
}

// Usage: create-admin [-email e] [-password p] [-name n], or positionally
// create-admin <email> <password> <name>. An omitted password is generated.
func main() {
	email := flag.String("email", "", "admin email")
	password := flag.String("password", "", "admin password; generated when empty")
	name := flag.String("name", "", "display name")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "create-admin"})
	_ = godotenv.Load()

	input := resolveInput(adminInput{Email: *email, Password: *password, Name: *name}, flag.Args())

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	generated, err := ensurePassword(&input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dto, err := buildAdmin(input, cfg.Password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	user, created, err := users.NewRepository(dbClient.DB()).Upsert(ctx, dto)
	if err != nil {
		logg.Error(ctx, "failed to upsert admin", err)
		os.Exit(1)
	}

	if created {
		fmt.Println("Admin user created")
	} else {
		fmt.Println("User already existed; promoted to admin and password reset")
	}
	fmt.Printf("Email: %s\n", user.Email)
	if generated {
		fmt.Printf("Password: %s\n", input.Password)
	}
}

// resolveInput fills blanks from positional args, then defaults.
func resolveInput(in adminInput, args []string) adminInput {
	fields := []*string{&in.Email, &in.Password, &in.Name}
	for i, arg := range args {
		if i >= len(fields) {
			break
		}
		if *fields[i] == "" {
			*fields[i] = arg
		}
	}
	if strings.TrimSpace(in.Email) == "" {
		in.Email = defaultEmail
	}
	if strings.TrimSpace(in.Name) == "" {
		in.Name = defaultName
	}
	return in
}

// ensurePassword generates a password when none was given.
func ensurePassword(in *adminInput) (bool, error) {
	if in.Password != "" {
		return false, nil
	}
	pw, err := security.GeneratePassword(generatedPasswordSize)
	if err != nil {
		return false, err
	}
	in.Password = pw
	return true, nil
}

func buildAdmin(in adminInput, pwCfg config.PasswordConfig) (users.UpsertUserDTO, error) {
	email := users.NormalizeEmail(in.Email)
	if err := validator.New().Var(email, "required,email"); err != nil {
		return users.UpsertUserDTO{}, fmt.Errorf("invalid email %q", in.Email)
	}
	if len(in.Password) < minPasswordLength {
		return users.UpsertUserDTO{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := security.HashPassword(in.Password, pwCfg)
	if err != nil {
		return users.UpsertUserDTO{}, err
	}
	return users.UpsertUserDTO{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		IsAdmin:      true,
	}, nil
}
