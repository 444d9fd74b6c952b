// Command mdsd is the MDS node daemon: it reads a node-config file,
// starts every node.ServerConfig it describes, and runs until SIGTERM
// or SIGINT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/cmn/mlog"
	"github.com/openvstorage/volumedriver-sub006/config"
	"github.com/openvstorage/volumedriver-sub006/node"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mdsd:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mdsd",
	Short:   "MDS node daemon",
	Version: Version,
	RunE:    runServer,
}

func init() {
	rootCmd.Flags().StringP("config-file", "C", "", "path to the node-config file (required)")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("log-json", false, "emit structured JSON logs instead of console output")
	_ = rootCmd.MarkFlagRequired("config-file")
}

func runServer(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config-file")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	mlog.Init(mlog.Config{Level: logLevel, JSONOutput: logJSON})

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config file %q: %w", configFile, err)
	}

	// Non-goal: real backend SDKs. MemBackend stands in for whichever
	// object-storage collaborator a deployment wires up; a production
	// build replaces it with a concrete catchup.BackendInterface.
	backend := catchup.NewMemBackend()
	mgr := node.NewManager(backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Update(ctx, node.FromConfig(cfg)); err != nil {
		return fmt.Errorf("starting nodes: %w", err)
	}
	mlog.Infoln("mdsd: started", len(cfg.Nodes), "node(s) from", configFile)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	mlog.Infoln("mdsd: shutting down")
	mgr.Shutdown()
	mlog.Infoln("mdsd: shutdown complete")
	return nil
}
