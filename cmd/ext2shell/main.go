package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ext2img/ext2shell/backend/file"
	"github.com/ext2img/ext2shell/ext2"
	"github.com/ext2img/ext2shell/internal/shell"
)

var flagVerbose bool

var rootCmd = &cobra.Command{
	Use:   "ext2shell IMAGE",
	Short: "Interactively browse and lightly edit an ext2 filesystem image",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	imagePath := args[0]
	store, err := file.OpenFromPath(imagePath, false)
	if err != nil {
		logrus.Warnf("opening %s read-write failed, retrying read-only: %v", imagePath, err)
		store, err = file.OpenFromPath(imagePath, true)
		if err != nil {
			return err
		}
	}

	fs, _, err := ext2.Open(store)
	if err != nil {
		return err
	}

	s := shell.New(fs, os.Stdin, os.Stdout, os.Stderr)
	return s.Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("%v", err)
		os.Exit(1)
	}
}
