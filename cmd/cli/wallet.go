package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/iho/numledger/internal/adapter/http/dto"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Query wallets through the API",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "balance <userID>",
		Short: "Print available funds of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			resp, err := client.Get(baseURL + "/api/v1/wallets/" + url.PathEscape(args[0]) + "/balance")
			if err != nil {
				return fmt.Errorf("making request: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("balance request failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
			}

			var balance dto.BalanceResponse
			if err := json.Unmarshal(body, &balance); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s available: %s\n", balance.UserID, balance.Available.StringFixed(2))
			return nil
		},
	})

	return cmd
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
