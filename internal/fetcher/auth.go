package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
)

var scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// Connect authenticates to Earth Engine once for the whole process and
// verifies the credentials with a trivial computation. Any failure is an
// AuthenticationFailure; callers should treat it as fatal.
func Connect(ctx context.Context, cfg config.EarthEngineConfig, logger *slog.Logger, observe Observer) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	creds, source, err := findCredentials(ctx, cfg)
	if err != nil {
		return nil, apperrors.AuthenticationFailure("no usable Earth Engine credentials; set GEE_SERVICE_ACCOUNT to a service account JSON key", err)
	}

	project := cfg.Project
	if project == "" {
		project = creds.ProjectID
	}
	if project == "" {
		return nil, apperrors.AuthenticationFailure("no Earth Engine project configured; set GEE_PROJECT", nil)
	}

	base := &http.Client{Timeout: cfg.Timeout}
	httpClient := oauth2.NewClient(context.WithValue(context.Background(), oauth2.HTTPClient, base), creds.TokenSource)
	httpClient.Timeout = cfg.Timeout

	client := NewClient(httpClient, Options{
		BaseURL:           cfg.BaseURL,
		Project:           project,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Logger:            logger,
		Observe:           observe,
	})

	if err := client.Verify(ctx); err != nil {
		client.Close()
		return nil, apperrors.AuthenticationFailure("Earth Engine rejected the configured credentials", err)
	}

	logger.Info("earth engine session established", "project", project, "credentials", source)
	return client, nil
}

// Verify evaluates the constant 1 on the server.
func (c *Client) Verify(ctx context.Context) error {
	var one float64
	if err := c.ComputeInto(ctx, expr.Constant(1), &one); err != nil {
		return err
	}
	if one != 1 {
		return fmt.Errorf("verification returned %v", one)
	}
	return nil
}

func findCredentials(ctx context.Context, cfg config.EarthEngineConfig) (*google.Credentials, string, error) {
	switch {
	case cfg.ServiceAccountJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.ServiceAccountJSON), scopes...)
		if err != nil {
			return nil, "", fmt.Errorf("parsing service account JSON: %w", err)
		}
		return creds, "service_account", nil

	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, "", fmt.Errorf("reading credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return nil, "", fmt.Errorf("parsing credentials file: %w", err)
		}
		return creds, "credentials_file", nil

	default:
		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, "", fmt.Errorf("finding application default credentials: %w", err)
		}
		return creds, "application_default", nil
	}
}
