package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/filing"
	"github.com/hpungsan/casefile/internal/ops"
	"github.com/hpungsan/casefile/internal/report"
	"github.com/hpungsan/casefile/internal/resolver"
	"github.com/hpungsan/casefile/internal/suggest"
)

// maxInputBytes bounds JSON read from stdin or input files.
const maxInputBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(svc *ops.Service) *cli.App {
	app := &cli.App{
		Name:    "casefile",
		Usage:   "Email-to-case filing assistant",
		Version: Version,
		Commands: []*cli.Command{
			suggestCmd(svc),
			statusCmd(svc),
			fileCmd(svc),
			unfileCmd(svc),
			doNotFileCmd(svc),
			allowFilingCmd(svc),
			intentCmd(svc),
			deferredCmd(svc),
			historyCmd(svc),
			watchCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// itemFlags identify the email a command acts on.
func itemFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "item-file", Usage: "JSON file holding the item context (flags override its fields)"},
		&cli.StringFlag{Name: "item-id", Usage: "Host item id"},
		&cli.StringFlag{Name: "conversation-id", Aliases: []string{"c"}, Usage: "Conversation (thread) id"},
		&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Usage: "Email subject"},
		&cli.StringFlag{Name: "sender", Usage: "Sender address"},
		&cli.StringSliceFlag{Name: "recipient", Usage: "Recipient address (repeatable)"},
		&cli.StringSliceFlag{Name: "attachment", Usage: "Attachment file name (repeatable)"},
		&cli.StringFlag{Name: "created-at", Usage: "Creation timestamp, used when no id is known"},
	}
}

func htmlFlag() cli.Flag {
	return &cli.BoolFlag{Name: "html", Usage: "Render an HTML explanation instead of JSON"}
}

// suggestCmd creates the suggest command.
func suggestCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Rank candidate cases for an email (reads the case list from --cases or stdin)",
		Flags: append(itemFlags(),
			&cli.StringFlag{Name: "cases", Usage: "JSON file with the candidate cases"},
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Leading part of the email body"},
			&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Maximum suggestions to return"},
			&cli.BoolFlag{Name: "content-only", Usage: "Ignore thread, sender, domain and recency history"},
			htmlFlag(),
		),
		Action: func(c *cli.Context) error {
			item, err := itemFromFlags(c)
			if err != nil {
				return outputError(err)
			}

			var data []byte
			if path := c.String("cases"); path != "" {
				data, err = readFile(path)
			} else if stdinHasData() {
				var text string
				text, err = readStdin(maxInputBytes)
				data = []byte(text)
			} else {
				err = errors.NewInvalidRequest("cases must be given with --cases or piped via stdin")
			}
			if err != nil {
				return outputError(err)
			}
			cases, err := suggest.DecodeCases(data)
			if err != nil {
				return outputError(err)
			}

			output, err := svc.Suggest(c.Context, ops.SuggestInput{
				Item:        item,
				BodyExcerpt: c.String("body"),
				Cases:       cases,
				TopK:        c.Int("top-k"),
				ContentOnly: c.Bool("content-only"),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("html") {
				return outputHTML("Suggested cases", report.Suggestions(item.Subject, output.Result))
			}
			return outputJSON(output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Resolve the filing state of an email",
		Flags: append(itemFlags(), htmlFlag()),
		Action: func(c *cli.Context) error {
			item, err := itemFromFlags(c)
			if err != nil {
				return outputError(err)
			}

			output, err := svc.Status(c.Context, item)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("html") {
				return outputHTML("Filing status", report.Resolution(item, *output))
			}
			return outputJSON(output)
		},
	}
}

// fileCmd creates the file command.
func fileCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "file",
		Usage: "File an email to a case",
		Flags: append(itemFlags(),
			&cli.StringFlag{Name: "case", Usage: "Target case id", Required: true},
			&cli.StringFlag{Name: "case-name", Usage: "Display name of the case"},
			&cli.StringFlag{Name: "case-key", Usage: "Visible case reference"},
		),
		Action: func(c *cli.Context) error {
			item, err := itemFromFlags(c)
			if err != nil {
				return outputError(err)
			}

			output, err := svc.File(c.Context, ops.FileInput{
				Item:     item,
				CaseID:   c.String("case"),
				CaseName: c.String("case-name"),
				CaseKey:  c.String("case-key"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// unfileCmd creates the unfile command.
func unfileCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "unfile",
		Usage: "Forget the local filing of an email (the remote document is kept)",
		Flags: itemFlags(),
		Action: func(c *cli.Context) error {
			item, err := itemFromFlags(c)
			if err != nil {
				return outputError(err)
			}

			output, err := svc.Unfile(c.Context, item)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// doNotFileCmd creates the do-not-file command.
func doNotFileCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "do-not-file",
		Usage: "Mark an email as not to be filed",
		Flags: itemFlags(),
		Action: func(c *cli.Context) error {
			item, err := itemFromFlags(c)
			if err != nil {
				return outputError(err)
			}

			output, err := svc.DoNotFile(c.Context, item)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// allowFilingCmd creates the allow-filing command.
func allowFilingCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "allow-filing",
		Usage: "Remove the do-not-file mark from an email",
		Flags: itemFlags(),
		Action: func(c *cli.Context) error {
			item, err := itemFromFlags(c)
			if err != nil {
				return outputError(err)
			}

			output, err := svc.AllowFiling(c.Context, item)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// intentCmd creates the intent command group.
func intentCmd(svc *ops.Service) *cli.Command {
	draftFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "conversation-id", Aliases: []string{"c"}, Usage: "Conversation id of the draft"},
			&cli.StringFlag{Name: "created-at", Usage: "Draft creation timestamp"},
		}
	}
	draft := func(c *cli.Context) ops.DraftRef {
		return ops.DraftRef{ConversationID: c.String("conversation-id"), CreatedAt: c.String("created-at")}
	}

	return &cli.Command{
		Name:  "intent",
		Usage: "Manage the filing intent of a draft",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Remember which case a draft is filed to when sent",
				Flags: append(draftFlags(),
					&cli.StringFlag{Name: "case", Usage: "Case id", Required: true},
					&cli.BoolFlag{Name: "auto-file", Usage: "File automatically once sent"},
					&cli.StringFlag{Name: "base-case", Usage: "Case of the document being replied to"},
					&cli.StringFlag{Name: "base-document", Usage: "Document being replied to"},
				),
				Action: func(c *cli.Context) error {
					output, err := svc.SetIntent(c.Context, draft(c), filing.ComposeIntent{
						CaseID:         c.String("case"),
						AutoFileOnSend: c.Bool("auto-file"),
						BaseCaseID:     c.String("base-case"),
						BaseDocumentID: c.String("base-document"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "get",
				Usage: "Show the intent of a draft",
				Flags: draftFlags(),
				Action: func(c *cli.Context) error {
					output, err := svc.GetIntent(c.Context, draft(c))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Clear the intent of a draft",
				Flags: draftFlags(),
				Action: func(c *cli.Context) error {
					output, err := svc.ClearIntent(c.Context, draft(c))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// deferredCmd creates the deferred command group.
func deferredCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "deferred",
		Usage: "Review duplicate filings waiting for confirmation",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List deferred filings, oldest first",
				Flags: []cli.Flag{htmlFlag()},
				Action: func(c *cli.Context) error {
					output, err := svc.ListDeferred(c.Context)
					if err != nil {
						return outputError(err)
					}
					if c.Bool("html") {
						return outputHTML("Deferred filings", report.Deferred(output.Items))
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "confirm",
				Usage:     "File a deferred filing as a new version",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := svc.ConfirmDeferred(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "discard",
				Usage:     "Drop a deferred filing",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if err := svc.DiscardDeferred(c.Context, id); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"id": id, "discarded": true})
				},
			},
		},
	}
}

// historyCmd creates the history command.
func historyCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Summarize the learned filing history",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "full", Usage: "Include every stored association"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.History(c.Context, c.Bool("full"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// watchCmd creates the watch command. It resolves the item the host writes
// to --item-file whenever the file changes and on every poll tick, printing
// one JSON line per resolution until interrupted. SIGHUP re-resolves the
// current item on the next tick, e.g. after it was filed from another shell.
func watchCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Resolve the current item whenever the host rewrites the item file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "item-file", Usage: "JSON file the host rewrites with the open item", Required: true},
			&cli.DurationFlag{Name: "interval", Usage: "Poll interval (defaults to poll_interval_ms)"},
		},
		Action: func(c *cli.Context) error {
			interval := c.Duration("interval")
			if interval <= 0 {
				interval = time.Duration(svc.Config().PollIntervalMS) * time.Millisecond
			}
			if interval <= 0 {
				interval = resolver.DefaultPollInterval
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := svc.Logger()
			src := resolver.NewFileSource(c.String("item-file"), log)
			changes, err := src.Watch(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("file watch unavailable, polling only")
			}
			defer src.Stop()

			enc := json.NewEncoder(os.Stdout)
			loop := resolver.NewLoop(svc.Resolver(), src, interval, func(_ resolver.CurrentItemContext, res resolver.Resolution) {
				if err := enc.Encode(res); err != nil {
					log.Warn().Err(err).Msg("writing resolution failed")
				}
			}, log)

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go refreshOnSignal(ctx, hup, loop, log)

			if err := loop.Run(ctx, changes); err != nil && ctx.Err() == nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// refreshOnSignal makes loop re-resolve its current item after each signal.
func refreshOnSignal(ctx context.Context, sigs <-chan os.Signal, loop *resolver.Loop, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			log.Debug().Str("signal", sig.String()).Msg("refreshing current item")
			loop.Refresh()
		}
	}
}

// Helper functions

// itemFromFlags builds the item context from --item-file and the item flags.
func itemFromFlags(c *cli.Context) (resolver.CurrentItemContext, error) {
	var item resolver.CurrentItemContext
	if path := c.String("item-file"); path != "" {
		data, err := readFile(path)
		if err != nil {
			return item, err
		}
		if err := json.Unmarshal(data, &item); err != nil {
			return item, errors.NewInvalidRequest(fmt.Sprintf("item file %s: %v", path, err))
		}
	}

	if v := c.String("item-id"); v != "" {
		item.ItemID = v
	}
	if v := c.String("conversation-id"); v != "" {
		item.ConversationID = v
	}
	if v := c.String("subject"); v != "" {
		item.Subject = v
	}
	if v := c.String("sender"); v != "" {
		item.SenderAddress = v
	}
	if v := c.StringSlice("recipient"); len(v) > 0 {
		item.Recipients = v
	}
	if v := c.StringSlice("attachment"); len(v) > 0 {
		item.AttachmentNames = v
	}
	if v := c.String("created-at"); v != "" {
		item.CreatedAt = v
	}
	return item, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHTML renders markdown as an HTML page on stdout.
func outputHTML(title, markdown string) error {
	page, err := report.HTML(title, markdown)
	if err != nil {
		return outputError(errors.NewInternal(err))
	}
	_, err = io.WriteString(os.Stdout, page)
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	if caseErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", caseErr.Code, caseErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}

// readFile reads a JSON input file, bounded like stdin.
func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxInputBytes+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if len(data) > maxInputBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("%s exceeds %d bytes", path, maxInputBytes))
	}
	return data, nil
}
