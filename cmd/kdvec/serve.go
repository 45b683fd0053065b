package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/viant/sqlite-kdtree/internal/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the document store over HTTP",
	Long: `Start an HTTP server over the document store.

Routes:
  POST   /documents       JSON array of {id, content, metadata, embedding}
  GET    /search?q=&k=    nearest documents to q (comma separated floats)
  DELETE /documents/{id}
  GET    /health

Example:
  kdvec serve --listen :9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = serveListen
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return server.New(store).ListenAndServe(ctx, cfg.Listen)
}
