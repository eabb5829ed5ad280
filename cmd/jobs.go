package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scriptify-labs/worker-cli/internal/registry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List the available job types",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := registry.Load(cfg.Registry.Path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tDESCRIPTION\tDEFAULTS")
		for _, name := range reg.Names() {
			def, _ := reg.Get(name)
			defaults := ""
			if len(def.Defaults) > 0 {
				data, _ := json.Marshal(def.Defaults)
				defaults = string(data)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", def.Type, def.Description, defaults)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
