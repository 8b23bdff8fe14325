package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iho/numledger/internal/adapter/http/dto"
	"github.com/iho/numledger/internal/pricing"
)

type weightFlags struct {
	cost, stock, rate float64
}

func (f *weightFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.cost, "cost", 0, "Cost weight (overrides file)")
	cmd.Flags().Float64Var(&f.stock, "stock", 0, "Stock weight (overrides file)")
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "Reliability weight (overrides file)")
}

// resolve picks flags over file weights over defaults.
func (f *weightFlags) resolve(cmd *cobra.Command, fromFile *pricing.Weights) pricing.Weights {
	w := pricing.DefaultWeights
	if fromFile != nil {
		w = *fromFile
	}

	if cmd.Flags().Changed("cost") {
		w.Cost = f.cost
	}
	if cmd.Flags().Changed("stock") {
		w.Stock = f.stock
	}
	if cmd.Flags().Changed("rate") {
		w.Rate = f.rate
	}

	return w
}

func pricingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Rank provider offers",
	}

	var rankWeights weightFlags
	rankCmd := &cobra.Command{
		Use:   "rank <file.json>",
		Short: "Rank options best first",
		Long:  `Reads {"weights":{...},"options":[...]} or a bare options array and prints the scored options.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRankRequest(args[0])
			if err != nil {
				return err
			}

			opt := pricing.NewOptimizer(rankWeights.resolve(cmd, req.Weights))
			return printJSON(cmd.OutOrStdout(), dto.RankResponse{
				Weights: opt.Weights(),
				Options: opt.RankOptions(req.Options),
			})
		},
	}
	rankWeights.bind(rankCmd)

	var optimizeWeights weightFlags
	optimizeCmd := &cobra.Command{
		Use:   "optimize <file.json>",
		Short: "Pick the best operator per country and service",
		Long:  `Reads {"weights":{...},"table":{country:{service:{operator:option}}}} or a bare table.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readOptimizeRequest(args[0])
			if err != nil {
				return err
			}

			opt := pricing.NewOptimizer(optimizeWeights.resolve(cmd, req.Weights))
			return printJSON(cmd.OutOrStdout(), dto.OptimizeResponse{
				Weights: opt.Weights(),
				Choices: opt.OptimizeTable(req.Table),
			})
		},
	}
	optimizeWeights.bind(optimizeCmd)

	cmd.AddCommand(rankCmd, optimizeCmd)
	return cmd
}

func readRankRequest(path string) (*dto.RankRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var options []pricing.Option
	if err := json.Unmarshal(data, &options); err == nil {
		return &dto.RankRequest{Options: options}, nil
	}

	var req dto.RankRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &req, nil
}

func readOptimizeRequest(path string) (*dto.OptimizeRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var req dto.OptimizeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if req.Table != nil {
		return &req, nil
	}

	var table pricing.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &dto.OptimizeRequest{Table: table}, nil
}
