package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"chameleon/internal/engine"
	"chameleon/internal/snapshot"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the performance report from the persisted snapshot",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := snapshot.New(cfg.Snapshot.Backend, cfg.SnapshotPath())
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("snapshot backend is %q; nothing to report on", cfg.Snapshot.Backend)
	}
	defer closeStore(store)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot found at %s", cfg.SnapshotPath())
	}

	printReport(engine.ReportFromSnapshot(snap, time.Now()))
	return nil
}

func printReport(r engine.Report) {
	summary := fmt.Sprintf("%s  sessions=%d  adaptations=%d  strategies=%d  health=%s",
		titleStyle.Render("chameleon"),
		r.TotalSessions, r.TotalAdaptations, r.StrategiesManaged,
		healthStyle(r.SystemHealth).Render(string(r.SystemHealth)))
	fmt.Println(boxStyle.Render(summary))

	if len(r.PerSiteType) > 0 {
		siteTypes := make([]string, 0, len(r.PerSiteType))
		for st := range r.PerSiteType {
			siteTypes = append(siteTypes, st)
		}
		sort.Strings(siteTypes)

		rows := make([][]string, 0, len(siteTypes))
		for _, st := range siteTypes {
			m := r.PerSiteType[st]
			rows = append(rows, []string{
				st,
				fmt.Sprintf("%d", m.TotalSessions),
				percent(m.SuccessRate),
				percent(m.DetectionRate),
				percent(m.ErrorRate),
				fmt.Sprintf("%.0fms", m.AverageResponseTimeMs),
			})
		}
		fmt.Println()
		fmt.Print(renderTable(
			[]string{"SITE TYPE", "SESSIONS", "SUCCESS", "DETECTED", "ERRORS", "AVG RT"},
			rows))
	}

	if len(r.RecentAdaptations) > 0 {
		fmt.Println()
		fmt.Println(headerStyle.Render("Recent adaptations"))
		for _, rec := range r.RecentAdaptations {
			fmt.Printf("  %s  %s  %s -> %s  %s\n",
				rec.Timestamp.Format("2006-01-02 15:04:05"),
				rec.SiteType,
				rec.OldStrategy.Version, rec.NewStrategy.Version,
				rec.NewStrategy.AdaptationReason)
		}
	}
}
