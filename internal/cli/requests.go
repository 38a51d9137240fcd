package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewRequestsCmd создаёт группу команд для просмотра restore.
func NewRequestsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"request", "req"},
		Short:   "Inspect restore requests",
	}

	cmd.AddCommand(
		newRequestsListCmd(clientFn, outputFn),
		newRequestsShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newRequestsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRequestsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List restore requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := clientFn().ListRequests(opts)
			if err != nil {
				return err
			}

			t := Table{Headers: []string{"GUID", "STATUS", "SIZE", "UPDATED", "DETAILS"}}
			t.Rows = make([][]string, len(reqs))
			for i, r := range reqs {
				t.Rows[i] = []string{r.GUID, r.Status, orDash(r.SizeHuman), r.UpdatedAt, r.Details}
			}

			return outputFn().Render(t, reqs)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (waiting, ready, finished, failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip first N results")

	return cmd
}

func newRequestsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show GUID",
		Short: "Show a restore request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := clientFn().GetRequest(args[0])
			if err != nil {
				return err
			}

			t := Table{Headers: []string{"ID", "GUID", "STATUS", "SIZE", "CREATED", "UPDATED", "DETAILS"}}
			t.Rows = [][]string{{
				strconv.FormatInt(req.ID, 10), req.GUID, req.Status, orDash(req.SizeHuman),
				req.CreatedAt, req.UpdatedAt, req.Details,
			}}
			return outputFn().Render(t, req)
		},
	}
}

// NewDownloadsCmd создаёт команду просмотра скачиваний restore.
func NewDownloadsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "downloads GUID",
		Short: "List downloads of a restore request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			downloads, err := clientFn().ListDownloads(args[0])
			if err != nil {
				return err
			}

			t := Table{Headers: []string{"FILE", "STATUS", "SIZE", "ATTEMPTS", "DETAILS"}}
			t.Rows = make([][]string, len(downloads))
			for i, d := range downloads {
				t.Rows[i] = []string{d.RemoteFilename, d.Status, d.SizeHuman, strconv.Itoa(d.Attempts), d.Details}
			}

			out := outputFn()
			if err := out.Render(t, downloads); err != nil {
				return err
			}
			if len(downloads) == 0 {
				out.Notef("request %s has no downloads yet", args[0])
			}
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
