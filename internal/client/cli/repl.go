package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
	AddPrompt(ctx context.Context, title string) error
	EditPrompt(ctx context.Context, ref string) error
	Delete(ctx context.Context, ref string) error
	Restore(ctx context.Context, ref string) error
	Favorite(ctx context.Context, ref string) error
	Show(ctx context.Context, ref string) error
	List(ctx context.Context, f models.ListFilter) error
	Purge(ctx context.Context) error
	Sync(ctx context.Context) error
	Resync(ctx context.Context) error
	Status(ctx context.Context) error
	Attach(ctx context.Context, ref, path string) error
	Fetch(ctx context.Context, ref, key, dest string) error
}

const (
	helpLoggedOut = "Available commands: login [token], help, exit"
	helpLoggedIn  = "Available commands: add [title], edit <ref>, delete <ref>, restore <ref>, " +
		"fav <ref>, show <ref>, (l)ist [trash] [fav] [folder=<id>], purge, " +
		"attach <ref> <file>, fetch <ref> <key> <file>, sync, resync, status, logout, exit"
)

// usage maps commands to their argument count and help line.
var usage = map[string]struct {
	args int
	line string
}{
	"edit":    {1, "Usage: edit <ref>"},
	"delete":  {1, "Usage: delete <ref>"},
	"restore": {1, "Usage: restore <ref>"},
	"fav":     {1, "Usage: fav <ref>"},
	"show":    {1, "Usage: show <ref>"},
	"attach":  {2, "Usage: attach <ref> <file>"},
	"fetch":   {3, "Usage: fetch <ref> <key> <file>"},
}

// runREPL starts a read–eval–print loop over reader.
//
// The first token of a line is the command, the rest are its arguments.
// Interactive commands (add, edit) read their prompts from the same reader,
// so one buffered stream serves both. The loop exits on EOF, on
// "exit"/"quit", or when ctx is done.
//
// Errors from commands are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("notes %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if u, ok := usage[cmd]; ok && len(args) < u.args {
			printlnFn(u.line)
			continue
		}

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "login":
			token := ""
			if len(args) > 0 {
				token = args[0]
			}
			cmdErr = a.Login(ctx, token)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "add":
			cmdErr = a.AddPrompt(ctx, strings.Join(args, " "))

		case "edit":
			cmdErr = a.EditPrompt(ctx, args[0])

		case "delete", "rm":
			if len(args) == 0 {
				printlnFn(usage["delete"].line)
				continue
			}
			cmdErr = a.Delete(ctx, args[0])

		case "restore":
			cmdErr = a.Restore(ctx, args[0])

		case "fav":
			cmdErr = a.Favorite(ctx, args[0])

		case "show":
			cmdErr = a.Show(ctx, args[0])

		case "l", "list":
			var f models.ListFilter
			if f, cmdErr = parseListArgs(args); cmdErr == nil {
				cmdErr = a.List(ctx, f)
			}

		case "purge":
			cmdErr = a.Purge(ctx)

		case "attach":
			cmdErr = a.Attach(ctx, args[0], args[1])

		case "fetch":
			cmdErr = a.Fetch(ctx, args[0], args[1], args[2])

		case "sync":
			cmdErr = a.Sync(ctx)

		case "resync":
			cmdErr = a.Resync(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}
