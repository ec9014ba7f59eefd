// Package auth manages local accounts: registration, login and the initial
// state document every new account starts from.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/normyan0809/Chat-in-different-roles/internal/models"
	"github.com/normyan0809/Chat-in-different-roles/internal/roster"
	"github.com/normyan0809/Chat-in-different-roles/internal/store"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("username must be 3-50 characters: letters, digits, hyphens, underscores")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Username validation: alphanumeric, hyphens, underscores, 3-50 chars
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)

// Every account starts with the built-in assistant contact. The ID must
// already be a valid endpoint identifier so roster lookups against the
// constant never miss.
const (
	AgentContactID   = "aiassistant"
	AgentDisplayName = "AI Assistant"

	agentGreeting = "Hi! I'm your AI assistant. Pick a persona and let's chat."
)

// Service handles account registration and login over the data store.
type Service struct {
	db  store.DataStore
	log zerolog.Logger
}

// NewService creates an auth service.
func NewService(db store.DataStore, logger zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: logger.With().Str("component", "auth").Logger(),
	}
}

// Register creates an account and seeds its initial state document.
func (s *Service) Register(ctx context.Context, username, password, displayName string) (*models.Account, *models.State, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if !usernameRegex.MatchString(username) {
		return nil, nil, ErrInvalidUsername
	}
	if len(password) < 8 {
		return nil, nil, ErrWeakPassword
	}

	existing, err := s.db.GetUserByName(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("check username: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	displayName = sanitizeName(displayName)
	if displayName == "" {
		displayName = username
	}

	account, err := s.db.CreateUser(ctx, username, string(hash), displayName)
	if err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	st := seedState(account)
	if err := s.db.SaveState(ctx, account.ID, st); err != nil {
		return nil, nil, fmt.Errorf("seed state: %w", err)
	}

	s.log.Info().Str("username", username).Msg("account registered")
	return account, st, nil
}

// Login verifies credentials and loads the account's state document. The
// error never reveals whether the username or the password was wrong.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Account, *models.State, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	account, err := s.db.GetUserByName(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if account == nil {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	st, err := s.db.LoadState(ctx, account.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		// State row lost or never written; start over from the seed.
		st = seedState(account)
		if err := s.db.SaveState(ctx, account.ID, st); err != nil {
			return nil, nil, fmt.Errorf("reseed state: %w", err)
		}
	}

	s.log.Info().Str("username", username).Msg("login ok")
	return account, st, nil
}

// seedState builds the initial state: the local profile plus the assistant
// contact with its greeting waiting unread.
func seedState(account *models.Account) *models.State {
	profile := models.UserProfile{
		ID:   models.NormalizeID(account.Username),
		Name: account.DisplayName,
	}

	rs := roster.New(profile.ID)
	c, err := rs.AddAgentContact(AgentContactID, AgentDisplayName, "")
	if err != nil {
		// Only possible if the username normalizes to the agent id.
		return &models.State{Profile: profile}
	}
	greeting := models.NewMessage(models.RoleRemoteAI, models.ContentText, agentGreeting)
	_ = rs.AppendMessage(c.ID, c.Personas[0].ID, greeting)

	return &models.State{Profile: profile, Contacts: rs.Contacts()}
}

// sanitizeName trims and limits a display name to 100 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}
	return name
}
