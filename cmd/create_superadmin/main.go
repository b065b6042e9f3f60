package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/desacikupa/umkmdesa/internal/auth"
	"github.com/desacikupa/umkmdesa/internal/config"
	"github.com/desacikupa/umkmdesa/internal/db"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const (
	minPasswordLength = 6
	superAdminName    = "Super Admin"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrSuperAdminExists = errors.New("a super admin already exists")
)

type superAdminStore interface {
	CountByRole(ctx context.Context, role auth.Role) (int, error)
	Create(ctx context.Context, user *auth.User) error
}

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:     cfg.PostgresHost,
		DBPort:     cfg.PostgresPort,
		DBName:     cfg.PostgresDBName,
		DBUser:     cfg.PostgresUser,
		DBPassword: os.Getenv("UMKM_POSTGRES_PASS"),
	})
	if err != nil {
		log.Fatalf("new db pool: %s", err)
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool); err != nil {
		log.Fatalf("migrate db: %s", err)
	}

	prompter := newPrompter(os.Stdin, os.Stdout)

	fmt.Println("=== Buat Super Admin ===")
	email, err := prompter.readLine("Email: ")
	if err != nil {
		log.Fatalf("read email: %s", err)
	}
	password, err := prompter.readPassword("Password: ")
	if err != nil {
		log.Fatalf("read password: %s", err)
	}
	confirm, err := prompter.readPassword("Konfirmasi password: ")
	if err != nil {
		log.Fatalf("read password confirmation: %s", err)
	}

	user, err := createSuperAdmin(ctx, auth.NewRepo(dbPool), email, password, confirm)
	if err != nil {
		log.Fatalf("create super admin: %s", err)
	}

	fmt.Println("Super admin berhasil dibuat")
	fmt.Printf("  email: %s\n", user.Email)
	fmt.Printf("  id:    %s\n", user.ID)
}

func createSuperAdmin(ctx context.Context, store superAdminStore, email, password, confirm string) (*auth.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmptyEmail
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	count, err := store.CountByRole(ctx, auth.RoleSuperAdmin)
	if err != nil {
		return nil, fmt.Errorf("count super admins: %w", err)
	}
	if count > 0 {
		return nil, ErrSuperAdminExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &auth.User{
		Email:        email,
		PasswordHash: hash,
		Nama:         superAdminName,
		Role:         auth.RoleSuperAdmin,
	}
	if err := store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

type prompter struct {
	in      *bufio.Reader
	out     io.Writer
	stdinFd int
	isTerm  bool
}

func newPrompter(stdin *os.File, out io.Writer) *prompter {
	fd := int(stdin.Fd())
	return &prompter{
		in:      bufio.NewReader(stdin),
		out:     out,
		stdinFd: fd,
		isTerm:  term.IsTerminal(fd),
	}
}

func (p *prompter) readLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads without echo when stdin is a terminal, and falls back to a
// plain line read for piped input.
func (p *prompter) readPassword(prompt string) (string, error) {
	if !p.isTerm {
		return p.readLine(prompt)
	}
	fmt.Fprint(p.out, prompt)
	password, err := term.ReadPassword(p.stdinFd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(password), nil
}
