package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signflow/internal/testing"
	"signflow/internal/testing/mock"
)

func newFakeCRMCmd() *cobra.Command {
	var (
		port         int
		token        string
		workspaceID  string
		baseURL      string
		seedContacts bool
	)
	cmd := &cobra.Command{
		Use:   "fake-crm",
		Short: "Serve the fake CRM REST API",
		Long: `Serve the in-memory fake CRM the scenario framework tests against, for
poking at the REST surface by hand or pointing other tools at it.

State lives in memory and is lost on exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := mock.NewApp(mock.Options{WorkspaceID: workspaceID, BaseURL: baseURL, Token: token})
			if seedContacts {
				if _, err := app.Store().SeedContacts(testing.DefaultContacts...); err != nil {
					return fmt.Errorf("failed to seed contacts: %w", err)
				}
			}

			server := mock.NewHTTPServer(app)
			if err := server.StartOnPort(ctx, port); err != nil {
				return err
			}
			readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := server.WaitForReady(readyCtx); err != nil {
				return fmt.Errorf("fake CRM did not become ready: %w", err)
			}

			opts := app.Options()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🧪 Fake CRM API listening on %s\n", server.Endpoint())
			fmt.Fprintf(out, "   Workspace: %s\n", opts.WorkspaceID)
			fmt.Fprintf(out, "   Routes:    %s/api/ws/%s/...\n", server.Endpoint(), opts.WorkspaceID)
			if token != "" {
				fmt.Fprintf(out, "   Auth:      Authorization: Bearer %s\n", token)
			}
			fmt.Fprintf(out, "Press Ctrl+C to stop\n")

			<-ctx.Done()

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := server.Stop(shutdownCtx); err != nil {
				return err
			}
			return server.GetError()
		},
	}
	cmd.Flags().IntVar(&port, "port", 8089, "Port to listen on (0 picks a free one)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token the API requires (default: none)")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "Workspace id (default: ws_test)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Origin of the signing URLs the API hands out")
	cmd.Flags().BoolVar(&seedContacts, "seed-contacts", true, "Create the default signer contacts")
	return cmd
}
