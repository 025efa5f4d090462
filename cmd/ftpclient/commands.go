package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
)

func newLsCmd(a *app) *cobra.Command {
	var (
		all    bool
		search string
		exact  bool
	)
	cmd := &cobra.Command{
		Use:   "ls [remote-dir]",
		Short: "List a remote directory",
		Long: `
List the current remote directory, or remote-dir when given. Directories
show their item count, or "no access" when they cannot be entered.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				if len(args) == 1 {
					if err := m.ChangeDirectory(ctx, args[0]); err != nil {
						return err
					}
				}
				entries, err := m.ListCurrentDirectory(ctx)
				if err != nil {
					return err
				}
				if !all && !a.cfg.ShowHidden {
					entries = ftpclient.FilterHidden(entries)
				}
				if search != "" {
					entries = ftpclient.Search(entries, search, ftpclient.SearchOptions{
						CaseSensitive: exact,
						IncludeDirs:   true,
					})
				}
				ftpclient.SortEntries(entries, a.cfg.FoldersFirst)
				printEntries(a, entries)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "show hidden entries")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only show names containing this text")
	cmd.Flags().BoolVar(&exact, "case-sensitive", false, "match --search case-sensitively")
	return cmd
}

func printEntries(a *app, entries []ftpclient.Entry) {
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		size := e.SizeText()
		if !e.IsDir() && e.RawSize == "" {
			size = humanize.IBytes(uint64(e.Size))
		}
		modified := ""
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Format("2006-01-02 15:04")
		}
		name := e.Name
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Kind, size, modified, name)
	}
	w.Flush()
}

func newPwdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pwd",
		Short: "Print the remote working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				dir, err := m.CurrentDirectory(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, dir)
				return nil
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "get remote [local]",
		Short: "Download a file or folder",
		Long: `
Download remote into local, which defaults to the base name of remote in the
current directory. Folders are downloaded recursively; files that fail are
listed at the end.
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			remote := args[0]
			local := path.Base(remote)
			if len(args) == 2 {
				local = args[1]
			}
			local, err := homedir.Expand(local)
			if err != nil {
				return err
			}
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				p := newProgressPrinter(a.stderr, remote, quiet)
				isDir, err := m.IsDirectory(ctx, remote)
				if err != nil {
					return err
				}
				start := time.Now()
				if isDir {
					err = m.DownloadFolder(ctx, remote, local, p)
				} else {
					err = m.DownloadFile(ctx, remote, local, p)
				}
				p.finish(start, err)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "put local [remote]",
		Short: "Upload a file or folder",
		Long: `
Upload local to remote, which defaults to the base name of local in the
current remote directory. Uploaded files are verified against the server's
reported size. Folders are uploaded recursively.
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			local, err := homedir.Expand(args[0])
			if err != nil {
				return err
			}
			remote := filepath.Base(local)
			if len(args) == 2 {
				remote = args[1]
			}
			info, err := os.Stat(local)
			if err != nil {
				return err
			}
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				p := newProgressPrinter(a.stderr, local, quiet)
				start := time.Now()
				if info.IsDir() {
					err = m.UploadFolder(ctx, local, remote, p)
				} else {
					err = m.UploadFile(ctx, local, remote, p)
				}
				p.finish(start, err)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir name",
		Short: "Create a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				return m.CreateDirectory(ctx, args[0])
			})
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm name",
		Short: "Delete a remote file or directory",
		Long: `
Delete a file or an empty directory. With -r, directories are deleted
together with everything below them.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				if recursive {
					return m.DeleteRecursive(ctx, args[0])
				}
				return m.DeleteItem(ctx, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete directories recursively")
	return cmd
}

func newMvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv old new",
		Short: "Rename a remote file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				return m.Rename(ctx, args[0], args[1])
			})
		},
	}
}

func newCpCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "cp src dst",
		Short: "Copy a remote file or directory on the server",
		Long: `
Copy src to dst on the same server. FTP has no server-side copy, so every
file is downloaded to a local staging file and uploaded again.
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withManager(ctx, func(m *ftpclient.Manager) error {
				p := newProgressPrinter(a.stderr, args[0], quiet)
				start := time.Now()
				err := m.CopyItem(ctx, args[0], args[1], p)
				p.finish(start, err)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}
