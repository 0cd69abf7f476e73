package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"pgit/internal/config"
	"pgit/internal/errors"
	"pgit/internal/hashing"
	"pgit/internal/logging"
	"pgit/internal/repo"
	"pgit/internal/watch"
	"pgit/internal/worktree"
	"pgit/shared/utils"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "pgit",
	Short: "pgit is a small content-addressed version control system",
	Long: `pgit tracks snapshots of a file tree. Files are staged into an index,
committed as immutable records linked to their parent, and compared against
the working tree to show what changed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to the repository config")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new pgit repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			existed, err := repo.Initialize(dir, config.Default())
			if err != nil {
				return fmt.Errorf("initializing repository: %w", err)
			}

			if existed {
				fmt.Println("Reinitialized existing pgit repository in", filepath.Join(dir, repo.DirName))
			} else {
				fmt.Println("Initialized empty pgit repository in", filepath.Join(dir, repo.DirName))
			}
			return nil
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add [paths...]",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			paths, err := absPaths(args)
			if err != nil {
				return err
			}

			results, stageErr := r.StageAll(paths)
			for _, res := range results {
				switch {
				case res.Ignored:
					fmt.Printf("%s %s (ignored)\n", faint("-"), res.Path)
				case res.Unchanged:
					fmt.Printf("%s %s (already staged)\n", faint("="), res.Path)
				default:
					fmt.Printf("%s %s\n", green("+"), res.Path)
				}
			}
			return stageErr
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit",
		Short: "Record the staged files as a new commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.Commit(message)
			if err != nil {
				return err
			}
			if res.NothingToCommit {
				fmt.Println("Nothing to commit.")
				return nil
			}

			fmt.Printf("Committed as %s (%d files)\n", yellow(res.Commit.String()), len(res.Record.Files))
			return nil
		},
	}
	commitCmd.Flags().StringP("message", "m", "", "Commit message")
	commitCmd.MarkFlagRequired("message")

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			watchTree, _ := cmd.Flags().GetBool("watch")

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			if err := printStatus(r); err != nil {
				return err
			}
			if !watchTree {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watchStatus(ctx, r)
		},
	}
	statusCmd.Flags().BoolP("watch", "w", false, "Keep running and reprint status when files change")

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show commit history from HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			entries, err := r.Log()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No commits yet.")
				return nil
			}

			for _, e := range entries {
				when := unixTime(e.Record.Timestamp)
				fmt.Printf("%s %s\n", yellow("commit"), yellow(e.Commit.String()))
				fmt.Printf("Date:  %s %s\n", when.Format(time.RFC1123Z), faint("("+humanize.Time(when)+")"))
				fmt.Printf("Files: %d\n\n", len(e.Record.Files))
				fmt.Printf("    %s\n\n", e.Record.Message)
			}
			return nil
		},
	}

	var showCmd = &cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show a commit, or print the content of a committed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := hashing.Parse(args[0])
			if err != nil {
				return err
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			exists, err := r.Objects.Exists(fp)
			if err != nil {
				return err
			}
			if !exists {
				content, err := r.Show(fp)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(content)
				return err
			}

			rec, err := r.ShowCommit(fp)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", yellow("commit"), yellow(fp.String()))
			if rec.Parent != nil {
				fmt.Printf("Parent: %s\n", rec.Parent.String())
			}
			fmt.Printf("Date:   %s\n\n", unixTime(rec.Timestamp).Format(time.RFC1123Z))
			fmt.Printf("    %s\n\n", rec.Message)

			for _, path := range utils.SortedKeys(rec.Files) {
				blob := rec.Files[path]
				size := faint("?")
				if meta, err := r.Blobs.Stat(blob); err == nil {
					size = humanize.Bytes(uint64(meta.Size))
				}
				fmt.Printf("  %s  %8s  %s\n", blob.Short(), size, path)
			}
			return nil
		},
	}

	var branchCmd = &cobra.Command{
		Use:   "branch",
		Short: "List branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			current, _, err := r.Refs.CurrentBranch()
			if err != nil {
				return err
			}
			branches, err := r.Refs.Branches()
			if err != nil {
				return err
			}
			if len(branches) == 0 {
				fmt.Printf("* %s %s\n", green(current), faint("(no commits yet)"))
				return nil
			}
			for _, b := range branches {
				if b == current {
					fmt.Printf("* %s\n", green(b))
				} else {
					fmt.Printf("  %s\n", b)
				}
			}
			return nil
		},
	}

	var verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check history and stored content for corruption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := r.Verify()
			fmt.Printf("Checked %d commits and %d blobs (%s stored)\n",
				report.Commits, report.Blobs, humanize.Bytes(uint64(report.Bytes)))
			if err != nil {
				return err
			}
			fmt.Println(green("ok"))
			return nil
		},
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(verifyCmd)
}

// openRepo opens the repository containing the current directory with a
// logger at the configured level.
func openRepo() (*repo.Repository, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}

	root, err := repo.FindRoot(cwd)
	if err != nil {
		return nil, err
	}

	level := logLevel
	if level == "" {
		cfg, err := config.Load(filepath.Join(root, repo.DirName, config.FileName))
		if err != nil {
			return nil, err
		}
		level = cfg.Core.LogLevel
	}

	logger, err := logging.NewDevelopment(level)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	return repo.Open(root, repo.Options{Logger: logger})
}

func absPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", a, err)
		}
		paths = append(paths, abs)
	}
	return paths, nil
}

func unixTime(ts float64) time.Time {
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*1e9))
}

func printStatus(r *repo.Repository) error {
	report, err := r.Status()
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func printReport(report worktree.Report) {
	if report.Clean() {
		fmt.Println("Nothing to commit, working tree clean")
		return
	}

	sections := []struct {
		title string
		hint  string
		mark  string
		paths []string
	}{
		{"Changes to be committed:", "(use \"pgit commit -m <message>\" to record them)", green("A"), report.Staged},
		{"Changes not staged for commit:", "(use \"pgit add <file>...\" to update what will be committed)", yellow("M"), report.Modified},
		{"Deleted files:", "(staged but missing from the working tree)", red("D"), report.Deleted},
		{"Untracked files:", "(use \"pgit add <file>...\" to include in what will be committed)", blue("?"), report.Untracked},
	}

	for _, s := range sections {
		if len(s.paths) == 0 {
			continue
		}
		fmt.Println(s.title)
		fmt.Println("  " + s.hint)
		for _, p := range s.paths {
			fmt.Printf("\t%s %s\n", s.mark, p)
		}
		fmt.Println()
	}
}

func watchStatus(ctx context.Context, r *repo.Repository) error {
	w, err := watch.New(r.Root, r.Ignore, watch.WithLogger(r.Logger.Named("watch")))
	if err != nil {
		return err
	}
	defer w.Close()

	changed := make(chan []string)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, changed) }()

	fmt.Println(faint("watching for changes, press Ctrl-C to stop"))
	for {
		select {
		case <-ctx.Done():
			return <-done
		case paths := <-changed:
			r.Logger.Debug("working tree changed", zap.Strings("paths", paths))
			fmt.Printf("\n%s %s\n", faint(time.Now().Format("15:04:05")), faint(fmt.Sprintf("%d path(s) changed", len(paths))))
			if err := printStatus(r); err != nil {
				return err
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), e)
		}
		os.Exit(errors.ExitCode(err))
	}
}
