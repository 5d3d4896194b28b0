package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-reward/infrastructure/httpapi"
	"github.com/ahrav/go-reward/internal/application"
)

func newExtractCommand(c *cli) *cobra.Command {
	var datasource string
	cmd := &cobra.Command{
		Use:   "extract [answer...]",
		Short: "Print the answer the datasource verifier extracts from each response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.build()
			if err != nil {
				return err
			}
			datasources := make([]string, len(args))
			for i := range datasources {
				datasources[i] = datasource
			}
			answers, err := eng.system.ExtractAnswers(cmd.Context(), args, datasources)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for i := range answers {
				if err := enc.Encode(map[string]any{
					"kind":      answers[i].Kind().String(),
					"extracted": answers[i],
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&datasource, "datasource", "d", "default", "datasource whose verifier extracts the answers")
	return cmd
}

func newKindsCommand(_ *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the built-in verifier kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, kind := range application.BuiltinKinds() {
				fmt.Fprintln(cmd.OutOrStdout(), kind)
			}
			return nil
		},
	}
}

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reward API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := c.build()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := httpapi.NewServer(eng.system, eng.metrics.Handler(), eng.logger)
			return srv.Run(ctx, c.v.GetString(keyListen))
		},
	}
	cmd.Flags().String(keyListen, ":8080", "listen address")
	return cmd
}
