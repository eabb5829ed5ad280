package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runInput     string
	runInputFile string
	runNoWait    bool
)

var runCmd = &cobra.Command{
	Use:   "run <job-type>",
	Short: "Submit a job run and execute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jobType := args[0]

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		input, err := resolveInput()
		if err != nil {
			return err
		}

		merged, err := e.Registry.MergeInput(jobType, input)
		if err != nil {
			return err
		}

		run, err := e.Runner.Submit(ctx, jobType, merged)
		if err != nil {
			return eris.Wrap(err, "submit run")
		}
		zap.L().Info("run submitted",
			zap.String("run_id", run.ID),
			zap.String("job_type", jobType))

		if runInputFile != "" {
			if err := archiveInput(run.ID, merged); err != nil {
				zap.L().Warn("archiving input failed", zap.Error(err))
			}
		}

		if runNoWait {
			return printJSON(os.Stdout, run)
		}

		if err := e.Runner.Execute(ctx, run.ID); err != nil {
			return eris.Wrap(err, "execute run")
		}

		final, err := e.Store.GetRun(ctx, run.ID)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, final)
	},
}

// resolveInput reads the run input from --input or --input-file. Both at
// once is ambiguous and rejected.
func resolveInput() (json.RawMessage, error) {
	if runInput != "" && runInputFile != "" {
		return nil, eris.New("--input and --input-file are mutually exclusive")
	}
	if runInputFile != "" {
		data, err := os.ReadFile(runInputFile)
		if err != nil {
			return nil, eris.Wrap(err, "read input file")
		}
		if !json.Valid(data) {
			return nil, eris.Errorf("input file %s is not valid JSON", runInputFile)
		}
		return data, nil
	}
	if runInput != "" {
		if !json.Valid([]byte(runInput)) {
			return nil, eris.New("--input is not valid JSON")
		}
		return json.RawMessage(runInput), nil
	}
	return nil, nil
}

// archiveInput keeps a copy of an uploaded input file next to the run's
// other artifacts.
func archiveInput(runID string, input json.RawMessage) error {
	if err := os.MkdirAll(cfg.Runs.InputDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cfg.Runs.InputDir, runID+".json"), input, 0o644)
}

func printJSON(w *os.File, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "run input as a JSON object")
	runCmd.Flags().StringVar(&runInputFile, "input-file", "", "path to a JSON file with the run input")
	runCmd.Flags().BoolVar(&runNoWait, "no-wait", false, "submit only, do not execute")
	rootCmd.AddCommand(runCmd)
}
