package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/noaodatalab/datalab-go/internal/storage"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a vos:// container",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().String("format", "csv", "listing format (csv, ascii, raw)")
	cmd.Flags().BoolP("long", "l", false, "long listing (ascii format)")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <vos-path> [local-path]",
		Short: "Download files from remote storage",
		Long: `Download one file, or every file matching a wildcard pattern.
A wildcarded source requires the local destination to be an existing
directory.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path> [vos-path]",
		Short: "Upload local files to remote storage",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Move or rename nodes within remote storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := app.store.Move(context.Background(), app.token, args[0], args[1])
			if err != nil {
				return err
			}

			return reportBatch(res)
		},
	}
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy nodes within remote storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := app.store.Copy(context.Background(), app.token, args[0], args[1])
			if err != nil {
				return err
			}

			return reportBatch(res)
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove files from remote storage",
		Long: `Remove one file, or every file matching a wildcard pattern.
The root and the reserved tmp and public containers are refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := app.store.Remove(context.Background(), app.token, args[0])
			if err != nil {
				return err
			}

			return reportBatch(res)
		},
	}
}

func newLnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ln <from> <target>",
		Short: "Create a link node in remote storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := app.store.Link(context.Background(), app.token, args[0], args[1]); err != nil {
				return err
			}

			statusf("OK\n")

			return nil
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a container in remote storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := app.store.Mkdir(context.Background(), app.token, args[0]); err != nil {
				return err
			}

			statusf("OK\n")

			return nil
		},
	}
}

func newRmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>",
		Short: "Remove an empty container from remote storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := app.store.Rmdir(context.Background(), app.token, args[0]); err != nil {
				return err
			}

			statusf("OK\n")

			return nil
		},
	}
}

func newTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <path> <tag>",
		Short: "Annotate a node in remote storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := app.store.Tag(context.Background(), app.token, args[0], args[1]); err != nil {
				return err
			}

			statusf("OK\n")

			return nil
		},
	}
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <vos-path> <url>",
		Short: "Fetch a URL server-side into remote storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			out, err := app.store.Load(context.Background(), app.token, args[0], args[1])
			if err != nil {
				return err
			}

			statusf("%s\n", out)

			return nil
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show node metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			node, err := app.store.Stat(context.Background(), app.token, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Path:  %s\n", node.Path)
			fmt.Printf("Type:  %s\n", node.Kind)
			fmt.Printf("Size:  %s\n", humanize.Bytes(uint64(node.Size)))

			if node.Target != "" {
				fmt.Printf("Target: %s\n", node.Target)
			}

			return nil
		},
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	name := "vos://"
	if len(args) == 1 {
		name = args[0]
	}

	format, _ := cmd.Flags().GetString("format")
	if long, _ := cmd.Flags().GetBool("long"); long {
		format = "ascii"
	}

	out, err := app.store.Ls(context.Background(), app.token, name, format)
	if err != nil {
		return err
	}

	fmt.Println(out)

	return nil
}

func runGet(_ *cobra.Command, args []string) error {
	from := args[0]

	to := ""
	if len(args) == 2 {
		to = args[1]
	}

	withProgress(app.store)

	res, err := app.store.Get(context.Background(), app.token, from, to)
	if err != nil {
		return err
	}

	return reportBatch(res)
}

func runPut(_ *cobra.Command, args []string) error {
	from := args[0]

	to := "vos://"
	if len(args) == 2 {
		to = args[1]
	}

	withProgress(app.store)

	res, err := app.store.Put(context.Background(), app.token, from, to)
	if err != nil {
		return err
	}

	return reportBatch(res)
}

// withProgress attaches a per-file progress line when stderr is a
// terminal and --quiet is not set.
func withProgress(store *storage.Store) {
	if flagQuiet || !isatty.IsTerminal(os.Stderr.Fd()) {
		return
	}

	store.OnTransfer = func(index, total int, source string, bytes int64) {
		fmt.Fprintf(os.Stderr, "(%d/%d) [%7s] %s\n", index, total, humanize.Bytes(uint64(bytes)), source)
	}
}

// reportBatch prints the per-file outcome ledger. A batch with failed
// entries still completed its full iteration; the summary line and exit
// message tell the user which files need attention.
func reportBatch(res *storage.BatchResult) error {
	if len(res.Entries) == 1 && res.Entries[0].Err == nil {
		statusf("OK\n")
		return nil
	}

	for _, e := range res.Entries {
		if e.Err != nil {
			fmt.Printf("%-40s Error: %v\n", e.Source, e.Err)
		} else {
			fmt.Printf("%-40s OK\n", e.Source)
		}
	}

	if failed := res.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(res.Entries))
	}

	return nil
}
