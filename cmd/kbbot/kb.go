package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kbbot/internal/knowledge"
	"kbbot/internal/lookup"
)

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the local knowledge base",
		Long:  "Add, list, search, and delete the documents kbbot answers from.",
	}
	cmd.AddCommand(kbAddCmd(), kbListCmd(), kbSearchCmd(), kbDeleteCmd(), kbAskCmd())
	return cmd
}

// withEngine opens the knowledge base for the duration of fn.
func withEngine(cmd *cobra.Command, fn func(e *knowledge.Engine) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opened, err := lookup.OpenEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer opened.Close()
	return fn(opened.Engine)
}

func kbAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>...",
		Short: "Add text documents to the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *knowledge.Engine) error {
				for _, path := range args {
					data, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					doc, err := e.AddDocument(cmd.Context(), filepath.Base(path), mimeType(path), string(data))
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s, %d chunks) as %s\n",
						doc.Name, humanize.Bytes(uint64(doc.Size)), doc.ChunkCount, doc.ID)
				}
				return nil
			})
		},
	}
}

func mimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "text/plain"
}

func kbListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *knowledge.Engine) error {
				docs, err := e.ListDocuments(cmd.Context())
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "knowledge base is empty")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSIZE\tCHUNKS\tADDED")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
						d.ID, d.Name, humanize.Bytes(uint64(d.Size)), d.ChunkCount, humanize.Time(d.CreatedAt))
				}
				return tw.Flush()
			})
		},
	}
}

func kbSearchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the best matching chunks for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *knowledge.Engine) error {
				hits, err := e.Search(cmd.Context(), strings.Join(args, " "), topK)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no matches")
					return nil
				}
				for i, h := range hits {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. %s #%d (score %.3f)\n   %s\n",
						i+1, h.DocName, h.Chunk.Index, h.Score, h.Chunk.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "number of results (default: knowledge.searchTopK)")
	return cmd
}

func kbDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(e *knowledge.Engine) error {
				if err := e.DeleteDocument(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("delete %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func kbAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the configured lookup backend without going through Slack",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			backend, err := lookup.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer backend.Close()
			answer, err := backend.Answerer.Answer(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}
