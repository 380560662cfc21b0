// Package cli provides the command-line interface for ArkForge
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configDir    string
	workspaceDir string
	verbosity    string
	version      string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "arkforge",
	Short: "Python application packaging, orchestrated",
	Long: `🔨 ArkForge - One front door for PyInstaller, Nuitka and cx_Freeze

ArkForge runs your pre-build actions, resolves the right packaging
command for the engine you pick and executes it with a sanitized
environment, streaming the build log as it goes.`,

	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("🔨 ArkForge v%s\n", version)
			return
		}
		cmd.Help()
	},
}

// Execute runs the CLI
func Execute(v string) error {
	version = v

	// Initialize the root command explicitly (avoiding init())
	initializeRootCommand()

	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags.
// This replaces the init() function to make initialization explicit and testable.
func initializeRootCommand() {
	cobra.OnInitialize(initGlobalConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: ~/.arkforge)")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")

	rootCmd.Flags().Bool("version", false, "Print version information and quit")

	// Add subcommands
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newEnginesCmd())
	rootCmd.AddCommand(newActionsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initGlobalConfig() {
	if configDir != "" {
		viper.AddConfigPath(configDir)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.arkforge")
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ARKFORGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbosity == "debug" {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Helper functions

func printSuccess(message string) {
	fmt.Printf("🔨 %s %s\n", color.GreenString("[ArkForge]"), message)
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "🔨 %s %s\n", color.RedString("[ArkForge]"), message)
}

func printInfo(message string) {
	fmt.Printf("🔨 %s %s\n", color.CyanString("[ArkForge]"), message)
}

func printWarning(message string) {
	fmt.Printf("🔨 %s %s\n", color.YellowString("[ArkForge]"), message)
}
