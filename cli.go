package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"secure-llm-assistant/db"
	"secure-llm-assistant/mcp"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app) *cli.App {
	return &cli.App{
		Name:    "assistant",
		Usage:   "Privacy-preserving local chat assistant",
		Version: Version,
		Commands: []*cli.Command{
			chatCmd(a),
			modelsCmd(a),
			ingestCmd(a),
			searchCmd(a),
			statusCmd(a),
			statsCmd(a),
			themeCmd(a),
			mcpCmd(a),
		},
	}
}

// chatCmd runs an interactive chat session in the current conversation.
func chatCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session",
		Action: func(c *cli.Context) error {
			conv, err := a.store.Current()
			if err != nil {
				return err
			}
			fmt.Printf("Conversation: %s (%s)\n", conv.Title, conv.ID)
			fmt.Println("Type /new for a new conversation, /list to list them, /delete <id> to delete one, /quit to exit.")

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				switch {
				case line == "/quit":
					return nil
				case line == "/new":
					conv, err := a.store.CreateConversation()
					if err != nil {
						return err
					}
					fmt.Printf("Started conversation %s\n", conv.ID)
					continue
				case line == "/list":
					convs, err := a.store.Conversations()
					if err != nil {
						return err
					}
					for _, cv := range convs {
						marker := " "
						if cv.ID == a.store.CurrentID() {
							marker = "*"
						}
						fmt.Printf("%s %s  %s\n", marker, cv.ID, cv.Title)
					}
					continue
				case strings.HasPrefix(line, "/switch "):
					id := strings.TrimSpace(strings.TrimPrefix(line, "/switch "))
					if err := a.store.SwitchCurrent(id); err != nil {
						fmt.Printf("cannot switch: %v\n", err)
					}
					continue
				case strings.HasPrefix(line, "/delete "):
					id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
					if err := a.store.DeleteConversation(id); err != nil {
						fmt.Printf("cannot delete: %v\n", err)
						continue
					}
					fmt.Printf("Deleted %s, now in %s\n", id, a.store.CurrentID())
					continue
				}

				reply, err := a.coordinator.Send(c.Context, a.store.CurrentID(), line)
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				fmt.Println(reply.Content)
			}
		},
	}
}

// modelsCmd groups the model lifecycle commands.
func modelsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "Manage inference models",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List known models and their states",
				Action: func(c *cli.Context) error {
					selected := a.registry.Selected()
					for _, m := range a.registry.List() {
						marker := " "
						if m.Name == selected {
							marker = "*"
						}
						fmt.Printf("%s %-40s %s\n", marker, m.Name, m.State)
					}
					return nil
				},
			},
			{
				Name:      "pull",
				Usage:     "Download a model and wait for completion",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("model name is required")
					}

					a.registry.Register(name)
					if err := a.registry.RequestDownload(c.Context, name); err != nil {
						return err
					}

					fmt.Printf("Downloading %s...\n", name)
					res, err := a.registry.WaitFor(c.Context, name)
					if err != nil {
						return err
					}
					if res.Err != nil {
						return res.Err
					}
					fmt.Printf("%s is %s\n", res.Name, res.State)
					return nil
				},
			},
			{
				Name:      "select",
				Usage:     "Select a ready model for inference",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("model name is required")
					}
					if err := a.registry.Select(name); err != nil {
						return err
					}
					if err := a.database.SetSetting(db.SettingSelectedModel, name); err != nil {
						a.logger.Warn("Could not persist model selection: %v", err)
					}
					fmt.Printf("Selected %s\n", name)
					return nil
				},
			},
		},
	}
}

// ingestCmd adds a document to the knowledge base.
func ingestCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Redact and store a document in the knowledge base",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("file path is required")
			}

			doc, err := a.coordinator.IngestDocument(c.Context, path)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %s as %s (%v findings redacted)\n",
				doc.Filename, doc.ID, doc.Metadata["findings"])
			return nil
		},
	}
}

// searchCmd queries the knowledge base.
func searchCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over documents and messages",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "Maximum hits"},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if query == "" {
				return fmt.Errorf("search query is required")
			}

			results, err := a.coordinator.SearchKnowledge(c.Context, query, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, r := range results {
				switch r.Source {
				case "document":
					fmt.Printf("[doc %s] %s: %s\n", r.DocumentID, r.Filename, r.Snippet)
				default:
					fmt.Printf("[conv %s] %s\n", r.ConversationID, r.Snippet)
				}
			}
			return nil
		},
	}
}

// statusCmd reports resource telemetry and admission state.
func statusCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show resource telemetry and admission state",
		Action: func(c *cli.Context) error {
			snap, ok := a.coordinator.Status()
			if !ok {
				// first sampler tick may not have fired yet
				time.Sleep(100 * time.Millisecond)
				snap, ok = a.coordinator.Status()
			}
			if !ok {
				fmt.Println("No telemetry sampled yet; new work is admitted.")
				return nil
			}

			fmt.Printf("CPU:    %.1f%%\n", snap.CPUUsage)
			fmt.Printf("Memory: %.1f%%\n", snap.MemoryUsage)
			if snap.GPUUsage != nil {
				fmt.Printf("GPU:    %.1f%%\n", *snap.GPUUsage)
			}
			if snap.Temperature != nil {
				fmt.Printf("Temp:   %.1fC\n", *snap.Temperature)
			}
			if snap.IsSafe {
				fmt.Println("State:  safe, new work is admitted")
			} else {
				fmt.Println("State:  unsafe, new work is refused")
			}
			return nil
		},
	}
}

// statsCmd prints database statistics.
func statsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show database statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "vacuum", Usage: "Reclaim unused space before reporting"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("vacuum") {
				if err := a.database.Vacuum(); err != nil {
					return err
				}
				fmt.Println("Vacuumed.")
			}
			stats, err := a.database.GetStats()
			if err != nil {
				return err
			}
			fmt.Printf("Conversations: %d\n", stats.ConversationCount)
			fmt.Printf("Messages:      %d\n", stats.MessageCount)
			fmt.Printf("Documents:     %d\n", stats.DocumentCount)
			fmt.Printf("Size:          %d bytes\n", stats.DBSizeBytes)
			return nil
		},
	}
}

// themeCmd reads or persists the UI theme setting.
func themeCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Show or set the interface theme",
		ArgsUsage: "[light|dark]",
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				current, err := a.database.GetSetting(db.SettingTheme)
				if err != nil {
					return err
				}
				if current == "" {
					current = "dark"
				}
				fmt.Println(current)
				return nil
			}
			if name != "light" && name != "dark" {
				return fmt.Errorf("unknown theme %q, want light or dark", name)
			}
			if err := a.database.SetSetting(db.SettingTheme, name); err != nil {
				return err
			}
			fmt.Printf("Theme set to %s\n", name)
			return nil
		},
	}
}

// mcpCmd serves the assistant tools over MCP stdio.
func mcpCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the assistant tools over MCP on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(a.coordinator, a.store, a.registry, a.pipeline, Version)
		},
	}
}
