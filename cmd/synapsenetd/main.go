// Command synapsenetd runs a SynapseNet node and exposes the operator CLI
// surface (§6): init, add, query, peers, stats, export, import.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/synapsenet/node/internal/model"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var dataDir, configFile string

	root := &cobra.Command{
		Use:   "synapsenetd",
		Short: "SynapseNet node and operator CLI",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override node.data_dir")
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file")

	root.AddCommand(newInitCmd(&configFile, &dataDir, logger))
	root.AddCommand(newAddCmd(&configFile, &dataDir, logger))
	root.AddCommand(newQueryCmd(&configFile, &dataDir, logger))
	root.AddCommand(newPeersCmd(&configFile, &dataDir, logger))
	root.AddCommand(newStatsCmd(&configFile, &dataDir, logger))
	root.AddCommand(newExportCmd(&configFile, &dataDir, logger))
	root.AddCommand(newImportCmd(&configFile, &dataDir, logger))

	return root
}

// exitCode maps an error's model.Kind to the §6 exit code table: 0 success,
// 1 generic, 2 invalid input, 3 storage, 4 network, 5 crypto.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case model.Is(err, model.KindInvalidInput):
		return 2
	case model.Is(err, model.KindStorage):
		return 3
	case model.Is(err, model.KindNetwork):
		return 4
	case model.Is(err, model.KindSignature):
		return 5
	default:
		return 1
	}
}
