package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/chaos-io/bgcompose/compose"
	"github.com/chaos-io/bgcompose/config"
	"github.com/chaos-io/bgcompose/rembg"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "bgcompose",
	Short:         "Remove the background of an image and composite it onto a new one",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		// 命令行参数覆盖配置文件
		if cmd.Flags().Changed("backend") {
			loaded.Backend, _ = cmd.Flags().GetString("backend")
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("strict") {
			loaded.StrictBackground, _ = cmd.Flags().GetBool("strict")
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		slog.SetDefault(loaded.NewLogger(os.Stderr))
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().String("backend", config.BackendCommand, "Segmentation backend (passthrough, command, comfyui)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("strict", false, "Fail instead of falling back when the background cannot be applied")
}

func newCompositor() *compose.Compositor {
	return compose.NewCompositor(rembg.NewLoader(cfg), compose.Options{
		StrictBackground: cfg.StrictBackground,
		ReuseAlpha:       cfg.ReuseAlpha,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
