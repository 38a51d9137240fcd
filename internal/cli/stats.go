package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт команду вывода счётчиков по статусам.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show request and download counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().Stats()
			if err != nil {
				return err
			}

			t := Table{Headers: []string{"KIND", "STATUS", "COUNT"}}
			t.Rows = appendCounts(t.Rows, "requests", stats.Requests)
			t.Rows = appendCounts(t.Rows, "downloads", stats.Downloads)

			return outputFn().Render(t, stats)
		},
	}
}

// NewActiveCmd создаёт команду вывода restore в работе.
func NewActiveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show restores tracked by the downloader",
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := clientFn().Active()
			if err != nil {
				return err
			}

			t := Table{Headers: []string{"GUID", "STATUS", "WORKERS", "IN FLIGHT"}}
			t.Rows = make([][]string, len(active))
			for i, a := range active {
				t.Rows[i] = []string{a.GUID, a.Status, strconv.Itoa(a.LiveWorkers), a.InFlight}
			}

			return outputFn().Render(t, active)
		},
	}
}

func appendCounts(rows [][]string, kind string, counts map[string]int64) [][]string {
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		rows = append(rows, []string{kind, s, strconv.FormatInt(counts[s], 10)})
	}
	return rows
}
