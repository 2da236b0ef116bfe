package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/corpus"
	"docrag/internal/rag"
)

func (c *cli) newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Ingest files or directories",
		Long: `Extracts, chunks and embeds each file and stores it.
Directories are scanned recursively for .txt, .md, .markdown and .docx files.
Unchanged files are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var failed int
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("failed to stat %s: %w", path, err)
				}
				if info.IsDir() {
					summary, err := c.app.Pipeline.IngestDir(ctx, path)
					if summary != nil {
						cmd.Printf("%s: %d files, %d indexed, %d skipped, %d failed\n",
							path, summary.Files, summary.Indexed, summary.Skipped, summary.Failed)
						failed += summary.Failed
					}
					if err != nil && summary == nil {
						return err
					}
					continue
				}
				res, err := c.app.Pipeline.IngestFile(ctx, path)
				if err != nil {
					cmd.PrintErrf("%s: %v\n", path, err)
					failed++
					continue
				}
				status := "indexed"
				if res.Skipped {
					status = "unchanged"
				}
				cmd.Printf("%s: %s (%d chunks, id %s)\n", res.FileName, status, res.Chunks, res.FileID)
			}
			if failed > 0 {
				return fmt.Errorf("%d files failed to ingest", failed)
			}
			return nil
		},
	}
}

func (c *cli) newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents and corpus statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := c.app.Store.Documents(ctx)
			if err != nil {
				return err
			}
			stats, err := c.app.Store.Stats(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, map[string]any{"documents": docs, "stats": stats})
			}

			if len(docs) == 0 {
				cmd.Println("No files in memory.")
				return nil
			}
			for _, d := range docs {
				cmd.Printf("%s  %-40s  %4d chunks  %8d bytes\n", d.FileID, d.FileName, d.ChunkCount, d.SizeBytes)
			}
			ts := stats.ChunkTokenStats
			cmd.Printf("\n%d documents, %d chunks, %d vectors, tokens min %d / max %d / mean %.1f / p95 %d\n",
				stats.Documents, stats.Chunks, stats.VectorPoints, ts.Min, ts.Max, ts.Mean, ts.P95)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *cli) newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <file-id|file-name>...",
		Short: "Remove documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, ref := range args {
				doc, err := c.resolve(cmd, ref)
				if err != nil {
					return err
				}
				if err := c.app.Store.Delete(ctx, doc.FileID); err != nil {
					return fmt.Errorf("failed to remove %s: %w", ref, err)
				}
				cmd.Printf("removed %s (%s)\n", doc.FileName, doc.FileID)
			}
			return nil
		},
	}
}

func (c *cli) newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <file-id|file-name> <new-name>",
		Short: "Rename a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			newName := strings.TrimSpace(args[1])
			if newName == "" {
				return errors.New("new name must not be empty")
			}
			doc, err := c.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			if err := c.app.Store.Rename(cmd.Context(), doc.FileID, newName); err != nil {
				return err
			}
			cmd.Printf("renamed %s to %s\n", doc.FileName, newName)
			return nil
		},
	}
}

func (c *cli) newSearchCmd() *cobra.Command {
	var (
		k         int
		files     []string
		summarize bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show grouped retrieval results for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.app.Engine.Search(cmd.Context(), rag.SearchRequest{
				Query:     strings.Join(args, " "),
				K:         k,
				FileNames: files,
				Summarize: summarize,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, resp)
			}
			if resp.Degraded {
				cmd.Println("(keyword-only results: embedding provider unavailable)")
			}
			if resp.Summary != "" {
				cmd.Printf("%s\n\n", resp.Summary)
			}
			if len(resp.Groups) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			for i, g := range resp.Groups {
				cmd.Printf("[%d] %s  (score %.3f, %d hits)\n", i+1, g.FileName, g.DocScore, g.HitCount)
				if g.KeywordSummary != "" {
					cmd.Printf("    %s\n", oneLine(g.KeywordSummary))
				}
				for _, s := range g.Snippets {
					label := ""
					if s.ClauseType != "" {
						label = " [" + s.ClauseType + "]"
					}
					cmd.Printf("    #%d%s %.3f  %s\n", s.Hit.Chunk.Position, label, s.Hit.Score, oneLine(s.Excerpt))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 0, "hits to retrieve before grouping (0 = default)")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "restrict to these file names")
	cmd.Flags().BoolVar(&summarize, "summary", false, "generate an overall and per-file summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *cli) newExtractCmd() *cobra.Command {
	var (
		fields []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "extract <file-id|file-name>",
		Short: "Extract key contract terms from a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.resolve(cmd, args[0])
			if err != nil {
				return err
			}
			res, err := c.app.Extractor.Extract(cmd.Context(), doc.FileID, fields)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, res)
			}
			cmd.Printf("%s (%d chunks, %d characters)\n", res.FileName, res.ChunkCount, res.TextLength)
			if len(res.Terms) == 0 {
				cmd.Println("No terms found.")
				return nil
			}
			for _, term := range res.Terms {
				cmd.Printf("  %-20s %s (%.2f)\n", term.Field, oneLine(term.Value), term.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&fields, "field", nil, "terms to extract (default: common contract terms)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

// resolve finds a document by id, falling back to its file name.
func (c *cli) resolve(cmd *cobra.Command, ref string) (*corpus.Document, error) {
	ctx := cmd.Context()
	doc, err := c.app.Store.Document(ctx, ref)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, corpus.ErrNotFound) {
		return nil, err
	}
	doc, err = c.app.Store.DocumentByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return doc, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
