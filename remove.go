package main

import (
	"errors"

	"github.com/chaos-io/bgcompose/compose"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the background of one image and write a PNG",
	RunE:  runRemove,
}

func init() {
	removeCmd.Flags().StringP("input", "i", "", "Input image file or http(s) URL")
	removeCmd.Flags().StringP("output", "o", "", "Output PNG file")
	removeCmd.Flags().String("bg-type", compose.BackgroundTransparent, "Background type (transparent, solid, image)")
	removeCmd.Flags().String("bg-color", "", "Background color as RRGGBB or #RRGGBB (solid)")
	removeCmd.Flags().String("bg-image", "", "Background image file (image)")
	_ = removeCmd.MarkFlagRequired("input")
	_ = removeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	bgType, _ := cmd.Flags().GetString("bg-type")
	bgColor, _ := cmd.Flags().GetString("bg-color")
	bgImage, _ := cmd.Flags().GetString("bg-image")

	req := compose.Request{
		InputPath:           inputPath,
		OutputPath:          outputPath,
		BackgroundType:      bgType,
		BackgroundColor:     bgColor,
		BackgroundImagePath: bgImage,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	if !newCompositor().RemoveBackground(cmd.Context(), req) {
		return errors.New("remove background failed")
	}
	return nil
}
