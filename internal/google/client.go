// Package google wraps the Calendar, Gmail and Sheets APIs used for booking
// side effects.
package google

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
)

// NewHTTPClient builds an OAuth2 client from a service account key file.
// A non-empty subject enables domain-wide delegation, which Gmail requires.
func NewHTTPClient(ctx context.Context, credentialsFile, subject string, scopes ...string) (*http.Client, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	config.Subject = subject

	return config.Client(ctx), nil
}
