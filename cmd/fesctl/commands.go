package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/document"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/journey"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/progress"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/session"
	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fesctl",
		Short:         "Operator tools for the fish exports front end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newProgressCmd(), newSessionCmd(), newErrorsCmd())
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newProgressCmd() *cobra.Command {
	var journeyName, file string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Print the progress report for a document JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			var doc document.Document
			if err := json.Unmarshal(b, &doc); err != nil {
				return fmt.Errorf("parse document: %w", err)
			}
			var j journey.Journey
			if strings.TrimSpace(journeyName) != "" {
				j, err = journey.Parse(journeyName)
			} else {
				j, err = journey.FromDocumentNumber(doc.DocumentNumber)
			}
			if err != nil {
				return err
			}
			report := progress.Compute(j, &doc)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"report":    report,
				"resumeUrl": report.ResumeURL(),
			})
		},
	}
	cmd.Flags().StringVar(&journeyName, "journey", "", "catchCertificate, processingStatement or storageNotes (default: from the document number)")
	cmd.Flags().StringVar(&file, "file", "", "path to a document JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect session cookies",
	}
	var secrets []string
	var value string
	decode := &cobra.Command{
		Use:   "decode",
		Short: "Verify a session cookie and print its payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := session.NewCodec(secrets...)
			if err != nil {
				return err
			}
			value = strings.TrimSpace(value)
			var payload map[string]any
			if err := codec.Decode(value, &payload); err == nil {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"backend": "cookie", "session": payload})
			}
			// Server-side backends sign only the session id.
			id, err := codec.Unsign(value)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"backend": "server", "id": id})
		},
	}
	decode.Flags().StringSliceVar(&secrets, "secret", nil, "session secret (repeatable, comma separated)")
	decode.Flags().StringVar(&value, "value", "", "cookie value")
	_ = decode.MarkFlagRequired("secret")
	_ = decode.MarkFlagRequired("value")
	cmd.AddCommand(decode)
	return cmd
}

func newErrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Work with upstream validation error bodies",
	}
	var file string
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Print the error summary for an upstream 400 body",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   []byte
				err error
			)
			if file == "-" {
				b, err = io.ReadAll(cmd.InOrStdin())
			} else {
				b, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read error body: %w", err)
			}
			errs, err := validation.FromUpstream(b)
			if err != nil {
				return err
			}
			if len(errs) == 0 {
				return errors.New("no field errors in body")
			}
			return writeJSON(cmd.OutOrStdout(), errs.Summary())
		},
	}
	summary.Flags().StringVar(&file, "file", "-", "path to the error body, - for stdin")
	cmd.AddCommand(summary)
	return cmd
}
