package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pdfrag/internal/client"
	"github.com/dgallion1/pdfrag/internal/tui"
)

type options struct {
	server string
	apiKey string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pdfchat",
		Short:         "Chat with your documents through a pdfrag server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("PDFRAG_SERVER", "http://localhost:8090"), "pdfrag server URL (env PDFRAG_SERVER)")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("PDFRAG_API_KEY"), "API key (env PDFRAG_API_KEY)")

	root.AddCommand(
		newUploadCmd(opts),
		newDocsCmd(opts),
		newRmCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newExportCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

func (o *options) client() *client.Client {
	return client.New(o.server, o.apiKey)
}

func newUploadCmd(opts *options) *cobra.Command {
	var (
		chunkSize, chunkOverlap int
		wait                    bool
	)
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload documents for indexing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			defer c.Close()
			out := cmd.OutOrStdout()

			files := make([]client.UploadFile, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				files = append(files, client.UploadFile{Name: filepath.Base(path), Data: f})
			}

			results, err := c.Upload(cmd.Context(), files, client.UploadOptions{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				SetOverlap:   cmd.Flags().Changed("chunk-overlap"),
			})
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
					fmt.Fprintf(out, "%s: %s\n", r.Filename, r.Error)
					continue
				}
				if !wait {
					fmt.Fprintf(out, "%s: queued job %s (doc %s)\n", r.Filename, r.JobID, r.DocID)
					continue
				}
				snap, err := c.WaitJob(cmd.Context(), r.JobID, 500*time.Millisecond)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s, %d pages, %d/%d chunks stored (doc %s)\n",
					r.Filename, snap.Status, snap.Progress.Pages, snap.Progress.ChunksStored, snap.Progress.TotalChunks, snap.DocID)
				for _, e := range snap.Progress.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
			}
			if failed == len(results) {
				return errors.New("no files were accepted")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "chunk size in characters (server default when 0)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "overlap between chunks in characters")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for indexing to finish")
	return cmd
}

func newDocsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			defer c.Close()
			docs, err := c.Documents(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "No documents indexed.")
				return nil
			}
			for _, d := range docs {
				fmt.Fprintf(out, "%s  %-40s  %4d pages  %5d chunks  %s\n",
					d.ID, d.Filename, d.Pages, d.Chunks, d.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func newRmCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "rm [DOC_ID]",
		Short: "Delete a document, or every document with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			defer c.Close()
			out := cmd.OutOrStdout()
			if all {
				n, err := c.ResetLibrary(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d documents.\n", n)
				return nil
			}
			n, err := c.DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted %s (%d chunks).\n", args[0], n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every document")
	return cmd
}

func newAskCmd(opts *options) *cobra.Command {
	var (
		k       int
		session string
	)
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask a single question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			defer c.Close()
			ctx := cmd.Context()
			if session == "" {
				id, err := c.CreateSession(ctx)
				if err != nil {
					return err
				}
				session = id
			}
			ex, err := c.Ask(ctx, session, args[0], k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ex.Answer.Content)
			if len(ex.Answer.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for i, src := range ex.Answer.Sources {
					fmt.Fprintln(out, tui.FormatSource(i+1, src))
				}
			}
			fmt.Fprintf(out, "\nsession: %s\n", session)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of passages to retrieve (server default when 0)")
	cmd.Flags().StringVar(&session, "session", "", "continue an existing session")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	var (
		k       int
		session string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			defer c.Close()
			if session == "" {
				id, err := c.CreateSession(cmd.Context())
				if err != nil {
					return err
				}
				session = id
			}
			if err := tui.Run(c, session, k); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session: %s\n", session)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of passages to retrieve (server default when 0)")
	cmd.Flags().StringVar(&session, "session", "", "continue an existing session")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var session, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download a session's chat history as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			defer c.Close()
			name, data, err := c.Export(cmd.Context(), session)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				output = name
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session to export")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" for stdout, server-suggested name when empty)`)
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library and session statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			defer c.Close()
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func printStats(w io.Writer, stats map[string]any) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-16s %v\n", k+":", stats[k])
	}
}
