package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cartaviva/cartaviva-backend/pkg/config"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "cartaviva",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	userID := uuid.New()

	payload := AccessTokenPayload{
		UserID:      userID,
		Role:        enums.ActorRoleTrader,
		DisplayName: "Ana",
	}

	token, err := MintAccessToken(cfg, now, payload)
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)

	require.Equal(t, userID, claims.UserID)
	require.Equal(t, enums.ActorRoleTrader, claims.Role)
	require.Equal(t, "Ana", claims.DisplayName)
	require.False(t, claims.IsModerator())
	require.Equal(t, cfg.Issuer, claims.Issuer)

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	require.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "cartaviva",
		ExpirationMinutes: 10,
	}
	now := time.Now()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleModerator,
	})
	require.NoError(t, err)

	tampered := config.JWTConfig{Secret: "other-secret", Issuer: cfg.Issuer}
	_, err = ParseAccessToken(tampered, token)
	require.Error(t, err)
}

func TestMintAccessTokenRejectsInvalidRole(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "cartaviva",
		ExpirationMinutes: 10,
	}
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRole("admin"),
	})
	require.Error(t, err)
}
