package models

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// AnnotationSkipManager marks commands that run without a Manager, such as
// configuration helpers added by the embedding CLI.
const AnnotationSkipManager = "models.skip-manager"

// SetupFunc builds the manager configuration for a command invocation.
// It runs after flag parsing, so it may read persistent flags of the parent CLI.
type SetupFunc func(cmd *cobra.Command) (Config, []ManagerOption, error)

// NewCommand creates a Cobra command tree for asset management.
// The returned command should be added to a parent CLI's root command.
//
// Commands provided:
//   - models list [--group G]
//   - models info <asset>
//   - models download <asset|all> [--group G] [--force] [--no-deps] [--concurrency N]
//   - models remove <asset|all> [--group G] [--cascade] [--yes]
//   - models files <asset>
//   - models path <asset>
//   - models mirror <repo> [--pattern P]... [--revision R] [--dir D]
//   - models prune [--yes]
//
// Every asset command accepts --dir to override the storage root.
// Global flags: --json, --quiet, --verbose
func NewCommand(cfg Config, opts ...ManagerOption) *cobra.Command {
	return NewCommandWithSetup(func(*cobra.Command) (Config, []ManagerOption, error) {
		return cfg, opts, nil
	})
}

// NewCommandWithSetup is like NewCommand but resolves the configuration lazily.
func NewCommandWithSetup(setup SetupFunc) *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
		verbose    bool
	)

	// Manager will be created in PersistentPreRunE
	var mgr Manager

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage voice model assets",
		Long:  "Download, verify, list, and remove the speech recognition and TTS model assets used by the voice assistant.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip manager creation for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Annotations[AnnotationSkipManager] != "" {
				return nil
			}

			cfg, opts, err := setup(cmd)
			if err != nil {
				return err
			}
			if f := cmd.Flags().Lookup("dir"); f != nil && f.Changed && cmd.Name() != "mirror" {
				cfg.Root = f.Value.String()
			}

			mgr, err = NewManager(cfg, opts...)
			if err != nil {
				return fmt.Errorf("failed to initialize manager: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	// Add subcommands
	cmd.AddCommand(listCmd(&mgr, &jsonOutput))
	cmd.AddCommand(infoCmd(&mgr, &jsonOutput))
	cmd.AddCommand(downloadCmd(&mgr, &jsonOutput, &quiet, &verbose))
	cmd.AddCommand(removeCmd(&mgr, &jsonOutput, &quiet))
	cmd.AddCommand(filesCmd(&mgr, &jsonOutput))
	cmd.AddCommand(pathCmd(&mgr))
	cmd.AddCommand(mirrorCmd(&mgr, &jsonOutput, &quiet))
	cmd.AddCommand(pruneCmd(&mgr, &quiet))

	return cmd
}

func addDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("dir", "", "Storage root override for every asset family")
}

func listCmd(mgr *Manager, jsonOutput *bool) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets and their local state",
		Long:  "List every catalog asset with its local status: complete, incomplete (placeholder or partial files), or missing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			statuses, err := (*mgr).List(ctx)
			if err != nil {
				return err
			}
			if group != "" {
				if _, err := (*mgr).Catalog().Members(group); err != nil {
					return err
				}
				filtered := statuses[:0]
				for _, s := range statuses {
					if s.Asset.Group == group {
						filtered = append(filtered, s)
					}
				}
				statuses = filtered
			}

			var spaces []DiskSpace
			for _, f := range (*mgr).Catalog().Families() {
				if ds, err := (*mgr).DiskSpace(ctx, f.Name); err == nil {
					spaces = append(spaces, ds)
				}
			}
			return outputStatuses(cmd.OutOrStdout(), statuses, spaces, *jsonOutput)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Only list members of this dependency group")
	addDirFlag(cmd)
	return cmd
}

func infoCmd(mgr *Manager, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <asset>",
		Short: "Show asset details",
		Long:  "Show the catalog entry of an asset and the on-disk state of each of its files.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := (*mgr).Catalog().Get(args[0])
			if err != nil {
				return err
			}
			state, err := (*mgr).Check(ctx, d.Name)
			if err != nil {
				return err
			}
			dir, err := (*mgr).Path(ctx, d.Name)
			if err != nil {
				return err
			}
			return outputAssetDetail(cmd.OutOrStdout(), AssetStatus{Asset: d, State: state, Path: dir}, *jsonOutput)
		},
	}
	addDirFlag(cmd)
	return cmd
}

func downloadCmd(mgr *Manager, jsonOutput, quiet, verbose *bool) *cobra.Command {
	var (
		group       string
		force       bool
		noDeps      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "download <asset|all>",
		Short: "Download an asset",
		Long: "Download every missing or undersized file of an asset. Shared prerequisites are downloaded first " +
			"unless --no-deps is given. \"all\" downloads every member of --group (default: the catalog's default group).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat := (*mgr).Catalog()

			assets, err := cat.Resolve(args[0], group)
			if err != nil {
				return err
			}
			names := assetNames(assets)
			if !noDeps {
				if names, err = cat.WithPrerequisites(names); err != nil {
					return err
				}
			}

			var opts []AcquireOption
			if force {
				opts = append(opts, WithForce())
			}
			if cmd.Flags().Changed("concurrency") {
				opts = append(opts, WithConcurrency(concurrency))
			}

			out := cmd.OutOrStdout()
			var progress *downloadProgress
			if !*quiet && !*jsonOutput && isTerminal(out) {
				progress = newDownloadProgress(out)
				opts = append(opts, WithProgress(progress.update))
			} else if *verbose && !*jsonOutput {
				opts = append(opts, WithProgress(func(p AcquireProgress) {
					if p.Done {
						status := "ok"
						if p.Err != nil {
							status = p.Err.Error()
						}
						fmt.Fprintf(out, "  %s: %s (%s)\n", p.Asset, p.File, status)
					}
				}))
			}

			batch, err := (*mgr).AcquireBatch(ctx, names, opts...)
			if progress != nil {
				progress.finish()
			}
			if *jsonOutput {
				if encErr := writeJSON(out, batch); encErr != nil {
					return encErr
				}
			} else {
				printBatch(out, batch, *quiet)
			}
			if err != nil {
				return err
			}

			if failed := batch.Failed(); len(failed) > 0 {
				if !*jsonOutput {
					printRemediation(cmd.ErrOrStderr(), failed, cmd.Root().Name())
				}
				return fmt.Errorf("%d of %d asset(s) incomplete", len(failed), len(batch.Results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Dependency group \"all\" expands to")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-download every file even if the asset is complete")
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "Do not download shared prerequisites")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", DefaultConcurrency, "Concurrent file downloads per asset")
	addDirFlag(cmd)
	return cmd
}

func removeCmd(mgr *Manager, jsonOutput, quiet *bool) *cobra.Command {
	var (
		group   string
		cascade bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "remove <asset|all>",
		Short: "Remove a downloaded asset",
		Long: "Remove the files of an asset after confirmation. A shared asset is only removed when no dependent " +
			"is on disk, or with --cascade, which removes the dependents first. \"all\" removes every member of " +
			"--group and then offers each shared asset left unused.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			confirm := newPromptConfirm(cmd.InOrStdin(), out, yes)

			if strings.EqualFold(strings.TrimSpace(args[0]), AliasAll) {
				if group == "" {
					group = (*mgr).Catalog().DefaultGroup()
				}
				res, err := (*mgr).RemoveGroup(ctx, group, WithConfirm(confirm))
				if *jsonOutput {
					if encErr := writeJSON(out, res); encErr != nil {
						return encErr
					}
				}
				if err != nil {
					return err
				}
				if res.Cancelled {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
				if !*jsonOutput {
					printGroupRemoval(out, res, *quiet)
				}
				if !res.OK() {
					return fmt.Errorf("removal of %s incomplete", group)
				}
				return nil
			}

			opts := []RemoveOption{WithConfirm(confirm)}
			if cascade {
				opts = append(opts, WithCascade())
			}
			res, err := (*mgr).Remove(ctx, args[0], opts...)
			if *jsonOutput {
				if encErr := writeJSON(out, res); encErr != nil {
					return encErr
				}
			}
			if err != nil {
				var conflict *DependencyConflictError
				if errors.As(err, &conflict) && !*jsonOutput {
					fmt.Fprintf(cmd.ErrOrStderr(), "Remove the dependents first, or re-run with --cascade:\n  %s remove %q --cascade\n",
						cmd.Root().Name(), conflict.Asset)
				}
				return err
			}
			if res.Cancelled {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
			if !*jsonOutput {
				printRemoval(out, res, *quiet)
			}
			if !res.OK {
				return fmt.Errorf("removal of %s incomplete", res.Asset)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "Dependency group \"all\" expands to")
	cmd.Flags().BoolVar(&cascade, "cascade", false, "Remove dependents of a shared asset first")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompts")
	addDirFlag(cmd)
	return cmd
}

func filesCmd(mgr *Manager, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "files <asset>",
		Short: "List the remote repository of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := (*mgr).RemoteFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return outputRemoteFiles(cmd.OutOrStdout(), files, *jsonOutput)
		},
	}
}

func pathCmd(mgr *Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path <asset>",
		Short: "Print the directory of an asset",
		Long:  "Print the filesystem path of the directory holding an asset's files.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := (*mgr).Path(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	addDirFlag(cmd)
	return cmd
}

func mirrorCmd(mgr *Manager, jsonOutput, quiet *bool) *cobra.Command {
	var (
		patterns []string
		revision string
		dir      string
	)

	cmd := &cobra.Command{
		Use:   "mirror <repo>",
		Short: "Download a repository snapshot",
		Long: "Download every file of an arbitrary repository, optionally restricted by --pattern globs (** supported). " +
			"Repositories consumed whole by their runtime, such as the MLX build of Kokoro, are fetched this way.",
		Example: "  models mirror prince-canuma/Kokoro-82M --dir ~/.dora/models/kokoro-mlx\n" +
			"  models mirror funasr/paraformer-zh -p '*.pt' -p '*.yaml'",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := (*mgr).Mirror(cmd.Context(), args[0], MirrorOptions{
				Revision: revision,
				Patterns: patterns,
				Dir:      dir,
			})
			if *jsonOutput {
				type mirrorResult struct {
					Repository string `json:"repository"`
					Dir        string `json:"dir"`
					Error      string `json:"error,omitempty"`
				}
				r := mirrorResult{Repository: args[0], Dir: out}
				if err != nil {
					r.Error = err.Error()
				}
				if encErr := writeJSON(cmd.OutOrStdout(), r); encErr != nil {
					return encErr
				}
			} else if err == nil && !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Mirrored %s to %s\n", args[0], out)
			}
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "Only fetch paths matching this glob (repeatable)")
	cmd.Flags().StringVar(&revision, "revision", "", "Repository revision (default: main)")
	cmd.Flags().StringVar(&dir, "dir", "", "Destination directory")
	return cmd
}

func pruneCmd(mgr *Manager, quiet *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete partial downloads",
		Long:  "Remove .part files left behind by interrupted downloads. Resumable transfers will start over.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			asked := false
			confirm := newPromptConfirm(cmd.InOrStdin(), out, yes)
			removed, err := (*mgr).PruneParts(cmd.Context(), func(prompt string, impact Impact) bool {
				asked = true
				return confirm(prompt, impact)
			})
			if err != nil {
				return err
			}

			switch {
			case !asked:
				if !*quiet {
					fmt.Fprintln(out, "No partial downloads found.")
				}
			case len(removed) == 0:
				fmt.Fprintln(out, "Aborted.")
			case !*quiet:
				fmt.Fprintf(out, "Removed %d partial download(s).\n", len(removed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// printRemediation tells the user how to retry each failed asset.
func printRemediation(w io.Writer, failed []AcquireResult, prog string) {
	fmt.Fprintln(w, "\nSome assets are incomplete:")
	for _, r := range failed {
		fmt.Fprintf(w, "  %s (%s on disk)\n", r.Asset, humanize.IBytes(uint64(r.State.SizeBytes)))
		for _, fe := range r.Errors {
			fmt.Fprintf(w, "    %s: %v\n", fe.Path, fe.Err)
		}
	}
	fmt.Fprintf(w, "Re-run to retry only the missing or undersized files:\n")
	for _, r := range failed {
		fmt.Fprintf(w, "  %s download %q\n", prog, r.Asset)
	}
	fmt.Fprintf(w, "Add --force to refetch every file of an asset.\n")
}
