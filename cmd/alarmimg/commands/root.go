package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "alarmimg",
	Short: "Arch Linux ARM VM disk image builder",
	Long:  `Builds bootable VM disk images from Arch Linux ARM release tarballs with FSM orchestration, GPT partitioning, and qemu-img conversion.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db-path", ".artifacts/builds.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM BoltDB directory")
	rootCmd.PersistentFlags().String("archive-dir", ".", "Directory for downloaded release archives")
	rootCmd.PersistentFlags().String("work-dir", "/tmp/alarmimg", "Scratch directory for mount points")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "Region for s3:// mirror URLs")

	viper.BindPFlag("db-path", rootCmd.PersistentFlags().Lookup("db-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("archive-dir", rootCmd.PersistentFlags().Lookup("archive-dir"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
}
