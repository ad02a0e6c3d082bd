package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hivetrust/internal/config"
	"hivetrust/internal/ingest"
)

func newRankCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "rank breeders|regions",
		Short:     "Print breeder or regional scorecards as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"breeders", "regions"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts, cmd.ErrOrStderr(), "text")
			if err != nil {
				return err
			}
			defer rt.Close()
			switch args[0] {
			case "breeders":
				list, err := rt.engine.BreederRankings(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && len(list) > limit {
					list = list[:limit]
				}
				return printJSON(cmd.OutOrStdout(), list)
			case "regions":
				list, err := rt.engine.RegionRankings(cmd.Context())
				if err != nil {
					return err
				}
				if limit > 0 && len(list) > limit {
					list = list[:limit]
				}
				return printJSON(cmd.OutOrStdout(), list)
			default:
				return fmt.Errorf("unknown ranking %q: want breeders or regions", args[0])
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many entries")
	return cmd
}

func newDetectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Evaluate all enabled rules once and print the signals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context(), opts, cmd.ErrOrStderr(), "text")
			if err != nil {
				return err
			}
			defer rt.Close()
			signals, evalErr := rt.engine.Evaluate(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), signals); err != nil {
				return err
			}
			return evalErr
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Store the measurements of a JSON file (object or array)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			records, err := ingest.ParseJSONBytes(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			rt, err := newRuntime(cmd.Context(), opts, cmd.ErrOrStderr(), "text")
			if err != nil {
				return err
			}
			defer rt.Close()
			sink := ingest.NewSink(rt.repo, rt.metrics, rt.logger)
			res, err := sink.Write(cmd.Context(), "file", records, ingest.Location(rt.cfg.Get().Ingest.Timezone))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config PATH",
		Short: "Write the default configuration to PATH (.json or .yaml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", args[0])
			return nil
		},
	}
}
