package api

import (
	"encoding/json"
	"strconv"
	"time"
)

// rawBody captures a response body verbatim for shape-tolerant decoding.
type rawBody = json.RawMessage

// User is the authenticated user's profile as returned by the backend.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is a credential pair plus the user profile issued by the auth
// endpoints.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// sessionPayload is the canonical wire shape: access_token, refresh_token,
// expires_at, user at the top level. The backend has historically also
// produced a bare "token" field and responses nested under "data"; those
// are accepted as fallbacks only.
type sessionPayload struct {
	AccessToken  string          `json:"access_token"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    json.RawMessage `json:"expires_at"`
	User         *User           `json:"user"`
	Data         *sessionPayload `json:"data"`
}

// parseSession decodes a session from an auth endpoint response body.
func parseSession(body []byte) (*Session, error) {
	var payload sessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	p := &payload
	if p.AccessToken == "" && p.Token == "" && p.Data != nil {
		p = p.Data
	}

	session := &Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		User:         p.User,
	}
	if session.AccessToken == "" {
		session.AccessToken = p.Token
	}
	session.ExpiresAt = parseExpiry(p.ExpiresAt)
	return session, nil
}

// parseUser decodes a user profile that may arrive bare, under "user", or
// under "data".
func parseUser(body []byte) (*User, error) {
	var wrapped struct {
		User *User `json:"user"`
		Data *User `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.User != nil {
			return wrapped.User, nil
		}
		if wrapped.Data != nil {
			return wrapped.Data, nil
		}
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// parseExpiry accepts either an RFC 3339 string or a Unix-seconds number.
func parseExpiry(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if t, err := time.Parse(time.RFC3339, asString); err == nil {
			return t
		}
		if secs, err := strconv.ParseInt(asString, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0)
		}
		return time.Time{}
	}

	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil && asNumber > 0 {
		return time.Unix(asNumber, 0)
	}
	return time.Time{}
}
