package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/config"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("KANSO_CONFIG_FILE", "")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("KANSO_TIMEZONE", "UTC")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", t.TempDir() + "/missing.env"}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestSweep_RequiresTarget(t *testing.T) {
	_, err := execute(t, "sweep", "--memory")
	assert.ErrorIs(t, err, errSweepTarget)

	_, err = execute(t, "sweep", "--memory", "--all", "--user", "u1")
	assert.ErrorIs(t, err, errSweepTarget)
}

func TestSweep_UserInMemory(t *testing.T) {
	out, err := execute(t, "sweep", "--memory", "--user", "u1")
	require.NoError(t, err)

	var result sweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "u1", result.UserID)
	assert.Equal(t, 0, result.Recomputed)
	require.NotNil(t, result.Report)
	assert.Equal(t, domain.SeverityNone, result.Report.Severity)
	assert.Empty(t, result.Changes)
}

func TestSweep_AllInMemory(t *testing.T) {
	out, err := execute(t, "sweep", "--memory", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, `"recomputed": 0`)
}

func TestServe_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := execute(t, "serve", "--memory")

	assert.ErrorIs(t, err, config.ErrMissingSecret)
}

func TestEngine_MemoryWiring(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Timezone = "UTC"

	e, err := newEngine(context.Background(), cfg, zap.NewNop(), true, nil)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	h, err := e.habitSvc.Create(ctx, services.CreateHabitInput{UserID: "u1", Title: "Stretch", Reminder: "00:00"})
	require.NoError(t, err)

	_, updated, err := e.completionSvc.Complete(ctx, services.CompleteInput{HabitID: h.ID, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Streak)

	n, err := e.streakSvc.RecomputeUser(ctx, "u1", e.today())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report, err := e.statusSvc.Status(ctx, "u1", true)
	require.NoError(t, err)
	assert.Empty(t, report.Overdue, "completed today")
	assert.WithinDuration(t, time.Now(), report.EvaluatedAt, time.Minute)
}

func TestToken(t *testing.T) {
	t.Run("Requires a user", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "cli-secret")
		_, err := execute(t, "token")
		assert.ErrorIs(t, err, errTokenUser)
	})

	t.Run("Requires the secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := execute(t, "token", "--user", "u1")
		assert.ErrorIs(t, err, config.ErrMissingSecret)
	})

	t.Run("Issued token validates against the server settings", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "cli-secret")
		t.Setenv("JWT_ISSUER", "kanso-cli-test")

		out, err := execute(t, "token", "--user", "u1", "--ttl", "5m")
		require.NoError(t, err)

		userID, err := services.NewTokenService("cli-secret", "kanso-cli-test", time.Hour).ValidateToken(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	})
}
