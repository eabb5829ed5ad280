package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var abortServer string

// Aborting goes through the serve process because only the process
// executing a run can cancel it cooperatively.
var abortCmd = &cobra.Command{
	Use:   "abort <run-id>",
	Short: "Abort a running or pending run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server := abortServer
		if server == "" {
			server = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}

		url := fmt.Sprintf("%s/runs/%s/abort", server, args[0])
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(nil))
		if err != nil {
			return eris.Wrap(err, "abort request")
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "abort request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			return eris.Errorf("abort failed (%d): %s", resp.StatusCode, bytes.TrimSpace(body))
		}
		os.Stdout.Write(body) //nolint:errcheck
		return nil
	},
}

func init() {
	abortCmd.Flags().StringVar(&abortServer, "server", "", "base URL of the serve process (default http://localhost:<port>)")
	rootCmd.AddCommand(abortCmd)
}
