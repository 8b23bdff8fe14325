package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/numledger/internal/adapter/http/dto"
	redisRepo "github.com/iho/numledger/internal/adapter/repository/redis"
	"github.com/iho/numledger/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "lon...", truncate("longerstring", 6))
	assert.Equal(t, "lo", truncate("longerstring", 2))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, struct {
		A int `json:"a"`
	}{A: 1}))

	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"sentinel", "verify"},
		{"sentinel", "sweep"},
		{"sentinel", "consistency"},
		{"sentinel", "incidents"},
		{"sentinel", "cooldown"},
		{"reservations", "reap"},
		{"pricing", "rank"},
		{"pricing", "optimize"},
		{"wallet", "balance"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestPricingRankBareArray(t *testing.T) {
	path := writeFile(t, "options.json", `[
		{"provider":"stocked","cost":"10","count":500},
		{"provider":"cheap","cost":"1","count":100}
	]`)

	out, err := execute(t, "pricing", "rank", path)
	require.NoError(t, err)

	var resp dto.RankResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Options, 2)
	assert.Equal(t, "cheap", resp.Options[0].Option.Provider)
}

func TestPricingRankWeightFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "rank.json", `{
		"weights": {"cost": 1},
		"options": [
			{"provider":"stocked","cost":"10","count":500},
			{"provider":"cheap","cost":"1","count":1}
		]
	}`)

	out, err := execute(t, "pricing", "rank", path)
	require.NoError(t, err)
	var byFile dto.RankResponse
	require.NoError(t, json.Unmarshal([]byte(out), &byFile))
	assert.Equal(t, "cheap", byFile.Options[0].Option.Provider)

	out, err = execute(t, "pricing", "rank", path, "--cost", "0", "--stock", "1")
	require.NoError(t, err)
	var byFlags dto.RankResponse
	require.NoError(t, json.Unmarshal([]byte(out), &byFlags))
	assert.Equal(t, "stocked", byFlags.Options[0].Option.Provider)
	assert.InDelta(t, 1.0, byFlags.Weights.Stock, 1e-9)
}

func TestPricingOptimize(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "wrapped table",
			content: `{"table":{"de":{"telegram":{"o2":{"provider":"a","cost":"1","count":5},"vodafone":{"provider":"b","cost":"3","count":5}}}}}`,
		},
		{
			name:    "bare table",
			content: `{"de":{"telegram":{"o2":{"provider":"a","cost":"1","count":5},"vodafone":{"provider":"b","cost":"3","count":5}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "pricing", "optimize", writeFile(t, "table.json", tt.content))
			require.NoError(t, err)

			var resp dto.OptimizeResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.Len(t, resp.Choices, 1)
			assert.Equal(t, "de", resp.Choices[0].Country)
			assert.Equal(t, "o2", resp.Choices[0].Operator)
		})
	}
}

func TestPricingErrors(t *testing.T) {
	_, err := execute(t, "pricing", "rank", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "pricing", "optimize", writeFile(t, "bad.json", "{"))
	assert.Error(t, err)

	_, err = execute(t, "pricing", "rank")
	assert.Error(t, err)
}

func TestWalletBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/wallets/u1/balance" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"user_id":"u1","available":"70.5"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--url", srv.URL, "wallet", "balance", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1 available: 70.50\n", out)

	_, err = execute(t, "--url", srv.URL, "wallet", "balance", "u2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestRunCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redisRepo.NewCooldownStore(client)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runCooldown(ctx, &out, store, "u1", false))
	assert.Equal(t, "no cooldown running for u1\n", out.String())

	acquired, err := store.Acquire(ctx, "u1", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	out.Reset()
	require.NoError(t, runCooldown(ctx, &out, store, "u1", false))
	assert.Equal(t, "cooldown for u1 ends in 1h0m0s\n", out.String())

	out.Reset()
	require.NoError(t, runCooldown(ctx, &out, store, "u1", true))
	assert.Equal(t, "cooldown for u1 cleared\n", out.String())

	acquired, err = store.Acquire(ctx, "u1", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired, "a cleared cooldown lets the next alert through")
}

func TestIncidentRows(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := incidentRows([]*domain.AuditLog{{
		ID:         "a1",
		ResourceID: "w1",
		AfterState: domain.JSON{"drift": "5"},
		CreatedAt:  at,
	}})

	require.Len(t, rows, 1)
	assert.Equal(t, "w1", rows[0]["wallet_id"])
	assert.Equal(t, "2026-03-01T10:00:00Z", rows[0]["recorded_at"])
	assert.Equal(t, domain.JSON{"drift": "5"}, rows[0]["details"])

	assert.Empty(t, incidentRows(nil))
}
