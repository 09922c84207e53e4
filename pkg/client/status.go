package client

import (
	"context"

	"github.com/rob634/rmhtitiler-sub001/internal/api"
)

// CredentialStatus retrieves the redacted state of every credential
// scope the server manages.
func (c *Client) CredentialStatus(ctx context.Context) (*api.CredentialStatusResponse, string, error) {
	var status api.CredentialStatusResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.CredentialStatusRoute).
		build(), &status)
	return &status, correlation, err
}
