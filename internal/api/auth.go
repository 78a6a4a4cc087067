package api

import (
	"context"
	"net/http"
)

// Login authenticates with email and password. The device token, when
// present, is forwarded so the backend can route push notifications.
func (c *Client) Login(ctx context.Context, email, password, deviceToken string) (*Session, error) {
	fields := map[string]string{
		"email":        email,
		"password":     password,
		"device_token": deviceToken,
	}

	var raw rawBody
	if err := c.postForm(ctx, c.httpClient, "/auth/login", fields, &raw); err != nil {
		return nil, err
	}
	return parseSession(raw)
}

// GoogleLogin authenticates with a Google ID token.
func (c *Client) GoogleLogin(ctx context.Context, idToken, deviceToken string) (*Session, error) {
	fields := map[string]string{
		"token":        idToken,
		"device_token": deviceToken,
	}

	var raw rawBody
	if err := c.postForm(ctx, c.httpClient, "/auth/googlelogin", fields, &raw); err != nil {
		return nil, err
	}
	return parseSession(raw)
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	DeviceToken          string `json:"device_token,omitempty"`
}

// Register creates a new account and returns the issued session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var raw rawBody
	if err := c.postJSON(ctx, c.httpClient, "/auth/register", req, &raw); err != nil {
		return nil, err
	}
	return parseSession(raw)
}

// Refresh exchanges a refresh token for a new credential pair. It runs on
// the longer refresh timeout.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}

	var raw rawBody
	if err := c.postJSON(ctx, c.refreshClient, "/auth/refresh", payload, &raw); err != nil {
		return nil, err
	}
	return parseSession(raw)
}

// Logout invalidates the server-side session. Local credentials are the
// caller's responsibility; they are cleared regardless of this call's
// outcome.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, c.httpClient, http.MethodGet, "/auth/logout", "", nil)
	return err
}

// CurrentUser fetches the authenticated user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var raw rawBody
	if err := c.get(ctx, "/auth/user", &raw); err != nil {
		return nil, err
	}
	return parseUser(raw)
}

// ForgotPassword requests a password-reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.postJSON(ctx, c.httpClient, "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPasswordRequest is the request body for completing a password reset.
type ResetPasswordRequest struct {
	Email                string `json:"email"`
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ResetPassword completes a password reset started by ForgotPassword.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.postJSON(ctx, c.httpClient, "/auth/reset-password", req, nil)
}

// RegisterDeviceToken registers a push-notification device token for the
// authenticated user.
func (c *Client) RegisterDeviceToken(ctx context.Context, deviceToken string) error {
	return c.postJSON(ctx, c.httpClient, "/auth/device-token", map[string]string{"device_token": deviceToken}, nil)
}
