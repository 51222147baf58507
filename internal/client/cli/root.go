package cli

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/buildinfo"
	"github.com/dmitrijs2005/notesync/internal/client/config"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/services"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags that are not part of config.Config.
type RootOptions struct {
	ConfigPath string
}

// openApp builds the App for a command. Tests replace it.
var openApp = NewApp

type rootState struct {
	opts RootOptions
	app  *App
}

func (s *rootState) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}

// Execute runs the command line and releases the App afterwards, also when
// the command failed.
func Execute(ctx context.Context, args []string) error {
	s := &rootState{}
	cmd := newRootCommand(s)
	cmd.SetArgs(args)
	defer s.close()
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand creates the root command for the notesync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootState{})
}

func newRootCommand(s *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notesync",
		Short: "notesync - offline-first notes",
		Long: `Keep notes in a local replica that is always writable and sync them
with the notesync server when it can be reached.

Run without a command for an interactive shell.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if offline(cmd) {
				return nil
			}
			cfg, err := config.Load(s.opts.ConfigPath, cmd.Flags())
			if err != nil {
				return err
			}
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			app.out = cmd.OutOrStdout()
			app.reader = bufio.NewReader(cmd.InOrStdin())
			s.app = app
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return s.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s.app.Root(cmd.Context())
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&s.opts.ConfigPath, "config", "c", "", "JSON config file")
	config.BindFlags(cmd.PersistentFlags())

	app := func() *App { return s.app }

	cmd.AddCommand(
		newAddCommand(app),
		newEditCommand(app),
		refCommand("delete <ref>", "Move a note to the trash", app, (*App).Delete),
		refCommand("restore <ref>", "Restore a note from the trash", app, (*App).Restore),
		refCommand("favorite <ref>", "Toggle the favorite flag of a note", app, (*App).Favorite),
		refCommand("show <ref>", "Print a note", app, (*App).Show),
		newListCommand(app),
		simpleCommand("purge", "Drop trashed notes the server has confirmed", app, (*App).Purge),
		simpleCommand("sync", "Push local changes, then pull remote ones", app, (*App).Sync),
		simpleCommand("resync", "Pull every note again from the beginning", app, (*App).Resync),
		simpleCommand("status", "Show pending, stalled and deferred changes", app, (*App).Status),
		simpleCommand("watch", "Sync continuously, reacting to server notifications", app, (*App).Watch),
		newLoginCommand(app),
		simpleCommand("logout", "Forget the stored access token", app, (*App).Logout),
		newAttachCommand(app),
		newFetchCommand(app),
		newVersionCommand(),
	)

	return cmd
}

// offline reports whether cmd runs without the replica: version, help and
// shell completion.
func offline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["offline"] == "true" {
			return true
		}
		switch c.Name() {
		case "help", "completion":
			return true
		}
	}
	return false
}

func simpleCommand(use, short string, app func() *App, run func(*App, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(app(), cmd.Context())
		},
	}
}

func refCommand(use, short string, app func() *App, run func(*App, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  short + ".\n\nref is the note reference or a unique prefix of it, as shown by list.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(app(), cmd.Context(), args[0])
		},
	}
}

func newAddCommand(app func() *App) *cobra.Command {
	var in services.NoteInput
	cmd := &cobra.Command{
		Use:   "add <title> [body...]",
		Short: "Create a note",
		Long: `Create a note. The body is the remaining arguments; a single "-"
reads it from standard input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = args[0]
			body, err := readBody(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			in.Body = body
			return app().Add(cmd.Context(), in)
		},
	}
	cmd.Flags().StringVar(&in.FolderID, "folder", "", "folder id")
	cmd.Flags().BoolVar(&in.Favorite, "favorite", false, "mark as favorite")
	return cmd
}

func readBody(in io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
	return strings.Join(args, " "), nil
}

func newEditCommand(app func() *App) *cobra.Command {
	var title, body, folder string
	cmd := &cobra.Command{
		Use:   "edit <ref>",
		Short: "Change the title, body or folder of a note",
		Long: `Change the fields given by flags. A body of "-" is read from
standard input. Without flags the note is edited interactively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit services.NoteEdit
			flags := cmd.Flags()
			if flags.Changed("title") {
				edit.Title = &title
			}
			if flags.Changed("body") {
				b, err := readBody(cmd.InOrStdin(), []string{body})
				if err != nil {
					return err
				}
				edit.Body = &b
			}
			if flags.Changed("folder") {
				edit.FolderID = &folder
			}
			if edit.Title == nil && edit.Body == nil && edit.FolderID == nil {
				return app().EditPrompt(cmd.Context(), args[0])
			}
			return app().Edit(cmd.Context(), args[0], edit)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&body, "body", "", `new body ("-" reads standard input)`)
	cmd.Flags().StringVar(&folder, "folder", "", "new folder id (empty clears it)")
	return cmd
}

func newListCommand(app func() *App) *cobra.Command {
	var f models.ListFilter
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List notes, favorites first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().List(cmd.Context(), f)
		},
	}
	cmd.Flags().BoolVar(&f.Trash, "trash", false, "list the trash instead")
	cmd.Flags().BoolVar(&f.FavoritesOnly, "favorites", false, "only favorites")
	cmd.Flags().StringVar(&f.FolderID, "folder", "", "only notes in this folder")
	return cmd
}

func newLoginCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Store the access token for this device",
		Long: `Store the access token issued for your account. Without an argument
the token is read from the terminal without echo.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			}
			return app().Login(cmd.Context(), token)
		},
	}
}

func newAttachCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <ref> <file>",
		Short: "Upload a file as an attachment of a synced note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Attach(cmd.Context(), args[0], args[1])
		},
	}
}

func newFetchCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <ref> <key> <file>",
		Short: "Download an attachment of a note into file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().Fetch(cmd.Context(), args[0], args[1], args[2])
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
			return nil
		},
	}
}
