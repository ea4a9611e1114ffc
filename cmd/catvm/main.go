package main

import (
	"fmt"
	"os"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/spf13/cobra"

	"github.com/CATProtocol/cat-token-box-sub000/cmd/catvm/version"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:        "catvm",
	Short:      "CAT20/CAT721 verification toolkit",
	SuggestFor: []string{"catvm"},
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.AddCommand(
		version.NewCommand(),
		newTxidCommand(),
		newDeployCommand(),
		newMerkleRootCommand(),
		newAttestCommand(),
	)
}

func newLogger() (logging.Logger, error) {
	level, err := logging.ToLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger("", logging.NewWrappedCore(level, os.Stderr, logging.Plain.ConsoleEncoder())), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "catvm failed %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}
