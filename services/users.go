package services

import (
	"database/sql"
	"errors"
	"fmt"

	"watchlog/models"
	"watchlog/sources"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// UserStore holds users and their per-source credentials. Clients read
// credentials at job start; refreshed tokens are written back through here.
type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, name, email, password_hash, trakt_user_name, trakt_client_id,
	jellyfin_server_url, jellyfin_user_id, jellyfin_access_token, credentials_invalid,
	created_at, updated_at`

// Create registers a user with a bcrypt password hash.
func (s *UserStore) Create(name, email, password string) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := models.NowUTC()
	query := s.db.Rebind(`
		INSERT INTO users (name, email, password_hash, credentials_invalid, created_at, updated_at)
		VALUES (?, ?, ?, FALSE, ?, ?)
		RETURNING id`)

	var id int64
	if err := s.db.Get(&id, query, name, email, string(hashed), now, now); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.FindByID(id)
}

func (s *UserStore) FindByID(id int64) (*models.User, error) {
	var user models.User
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	err := s.db.Get(&user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", id, err)
	}
	return &user, nil
}

// Authenticate verifies a name/password pair.
func (s *UserStore) Authenticate(name, password string) (*models.User, error) {
	var user models.User
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE name = ?`)
	err := s.db.Get(&user, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("invalid credentials")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}
	return &user, nil
}

func authError(source, message string) error {
	return &sources.Error{Kind: sources.ErrorKindAuth, Source: source, Err: errors.New(message)}
}

// TraktCredentials returns the user's social-service credentials, or an auth
// error when they are missing so the job fails like an expired token would.
func (s *UserStore) TraktCredentials(userID int64) (*sources.TraktCredentials, error) {
	user, err := s.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.TraktUserName == nil || user.TraktClientID == nil {
		return nil, authError("trakt", "user has no trakt credentials")
	}
	return &sources.TraktCredentials{
		UserName: *user.TraktUserName,
		ClientID: *user.TraktClientID,
	}, nil
}

// JellyfinCredentials returns the user's media-server credentials.
func (s *UserStore) JellyfinCredentials(userID int64) (*sources.JellyfinCredentials, error) {
	user, err := s.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.JellyfinServerURL == nil || user.JellyfinUserID == nil || user.JellyfinAccessToken == nil {
		return nil, authError("jellyfin", "user has no jellyfin credentials")
	}
	return &sources.JellyfinCredentials{
		ServerURL:   *user.JellyfinServerURL,
		UserID:      *user.JellyfinUserID,
		AccessToken: *user.JellyfinAccessToken,
	}, nil
}

// SetTraktCredentials stores the user's social-service credentials and
// clears the invalid flag.
func (s *UserStore) SetTraktCredentials(userID int64, userName, clientID string) error {
	query := s.db.Rebind(`UPDATE users SET trakt_user_name = ?, trakt_client_id = ?, credentials_invalid = FALSE, updated_at = ? WHERE id = ?`)
	if _, err := s.db.Exec(query, userName, clientID, models.NowUTC(), userID); err != nil {
		return fmt.Errorf("failed to store trakt credentials: %w", err)
	}
	return nil
}

// SetJellyfinCredentials stores the user's media-server credentials and
// clears the invalid flag.
func (s *UserStore) SetJellyfinCredentials(userID int64, serverURL, jellyfinUserID, accessToken string) error {
	query := s.db.Rebind(`UPDATE users SET jellyfin_server_url = ?, jellyfin_user_id = ?, jellyfin_access_token = ?, credentials_invalid = FALSE, updated_at = ? WHERE id = ?`)
	if _, err := s.db.Exec(query, serverURL, jellyfinUserID, accessToken, models.NowUTC(), userID); err != nil {
		return fmt.Errorf("failed to store jellyfin credentials: %w", err)
	}
	return nil
}

// UpdateJellyfinAccessToken writes back a refreshed token. A single keyed
// UPDATE is atomic on both engines, so parallel refreshes cannot lose
// updates.
func (s *UserStore) UpdateJellyfinAccessToken(userID int64, accessToken string) error {
	query := s.db.Rebind(`UPDATE users SET jellyfin_access_token = ?, updated_at = ? WHERE id = ?`)
	if _, err := s.db.Exec(query, accessToken, models.NowUTC(), userID); err != nil {
		return fmt.Errorf("failed to update jellyfin token: %w", err)
	}
	return nil
}

// MarkCredentialsInvalid flags the user after an auth failure so the UI can
// prompt for new credentials.
func (s *UserStore) MarkCredentialsInvalid(userID int64) error {
	query := s.db.Rebind(`UPDATE users SET credentials_invalid = TRUE, updated_at = ? WHERE id = ?`)
	if _, err := s.db.Exec(query, models.NowUTC(), userID); err != nil {
		return fmt.Errorf("failed to mark credentials invalid: %w", err)
	}
	return nil
}
