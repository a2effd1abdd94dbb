package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chameleon/internal/engine"
	"chameleon/internal/snapshot"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy <site-type>",
	Short: "Show the active strategy for a site type",
	Long: `Prints the persisted strategy for a site type, or the default baseline if
the site type has never been seen.`,
	Args: cobra.ExactArgs(1),
	RunE: runStrategy,
}

func runStrategy(cmd *cobra.Command, args []string) error {
	siteType := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	strat := engine.BaselineStrategy(siteType, time.Now())
	source := "baseline"

	store, err := snapshot.New(cfg.Snapshot.Backend, cfg.SnapshotPath())
	if err != nil {
		return err
	}
	if store != nil {
		defer closeStore(store)
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		snap, err := store.Load(ctx)
		if err != nil {
			return err
		}
		if snap != nil {
			if s, ok := snap.Strategies[siteType]; ok {
				strat = s
				source = "snapshot"
			}
		}
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s (%s, v%s)", siteType, source, strat.Version)))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(strat)
}
