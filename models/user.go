package models

type User struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`

	TraktUserName *string `db:"trakt_user_name" json:"trakt_user_name,omitempty"`
	TraktClientID *string `db:"trakt_client_id" json:"-"`

	JellyfinServerURL   *string `db:"jellyfin_server_url" json:"jellyfin_server_url,omitempty"`
	JellyfinUserID      *string `db:"jellyfin_user_id" json:"jellyfin_user_id,omitempty"`
	JellyfinAccessToken *string `db:"jellyfin_access_token" json:"-"`

	CredentialsInvalid bool `db:"credentials_invalid" json:"credentials_invalid"`

	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}
