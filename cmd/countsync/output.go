package main

import (
	"fmt"
	"time"

	"github.com/fieldcount/countsync/internal/sync"
	"github.com/fieldcount/countsync/internal/ui"
)

// printCycle lists per-kind uploads and failed catalogs of one cycle.
func printCycle(res *sync.CycleResult) {
	for _, k := range res.Uploads {
		if k == nil {
			continue
		}
		line := fmt.Sprintf("%d uploaded", k.Uploaded)
		if k.Stale > 0 {
			line += fmt.Sprintf(", %d edited in flight", k.Stale)
		}
		if k.Failed > 0 {
			line += ", " + ui.RenderWarn(fmt.Sprintf("%d failed", k.Failed))
		}
		fmt.Printf("   %s\n", ui.Field(string(k.Kind), line))
		for _, ge := range k.Errors {
			fmt.Printf("     %s %v\n", ui.RenderFail("✗"), ge)
		}
	}

	if res.Download == nil {
		return
	}
	refreshed := len(res.Download.Catalogs) - len(res.Download.Failed())
	fmt.Printf("   %s\n", ui.Field("Catalogs", fmt.Sprintf("%d refreshed", refreshed)))
	for _, c := range res.Download.Catalogs {
		switch {
		case c.Err != nil:
			fmt.Printf("     %s %s\n", ui.RenderFail("✗"), c)
		case c.Skipped > 0:
			fmt.Printf("     %s %s\n", ui.RenderWarn("⚠"), c)
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ui.RenderMuted("never")
	}
	return fmt.Sprintf("%s (%s ago)", t.Local().Format("2006-01-02 15:04:05"), time.Since(t).Round(time.Second))
}
