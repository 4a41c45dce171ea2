package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/foliosite/folio/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)
	ctx := context.Background()

	t.Run("readyz reports healthy database", func(t *testing.T) {
		health, err := client.Health(ctx)
		require.NoError(t, err)
		require.Equal(t, "ok", health.Status)
		require.NotEmpty(t, health.Uptime)
		require.NotEmpty(t, health.Version)
		require.NotNil(t, health.Checks)
		require.Equal(t, "ok", health.Checks.Database)
	})

	t.Run("livez responds without authentication", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/livez")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
