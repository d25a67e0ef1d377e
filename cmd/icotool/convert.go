package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	bmp "github.com/jsummers/gobmp"
	"github.com/spf13/cobra"

	ico "github.com/antoinefink/golang-icocur"
)

var (
	convertOutput    string
	convertSizes     []int
	convertDepth     int
	convertCursor    bool
	convertHotspot   []int
	convertFilter    string
	convertThreshold uint8
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert IMAGE",
		Short: "Build an icon or cursor from a PNG or BMP image",
		Args:  cobra.ExactArgs(1),
		RunE:  runConvert,
	}
	cmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output file (required, - for stdout)")
	cmd.Flags().IntSliceVar(&convertSizes, "size", []int{16, 32, 48, 256}, "Square entry sizes")
	cmd.Flags().IntVar(&convertDepth, "depth", 32, "Bits per pixel: 1, 4, 8, 24 or 32")
	cmd.Flags().BoolVar(&convertCursor, "cursor", false, "Write a CUR file instead of an ICO")
	cmd.Flags().IntSliceVar(&convertHotspot, "hotspot", []int{0, 0}, "Cursor hotspot x,y in source image pixels")
	cmd.Flags().StringVar(&convertFilter, "filter", ico.HighQualityBicubic.String(), "Resampling filter")
	cmd.Flags().Uint8Var(&convertThreshold, "alpha-threshold", ico.DefaultAlphaThreshold, "Alpha below which pixels become transparent in indexed entries")
	if err := cmd.MarkFlagRequired("output"); err != nil {
		panic(err)
	}
	return cmd
}

func readImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".bmp") {
		return bmp.Decode(bytes.NewReader(data))
	}
	return png.Decode(bytes.NewReader(data))
}

func runConvert(cmd *cobra.Command, args []string) error {
	depth, ok := ico.DepthFromBits(convertDepth)
	if !ok {
		return fmt.Errorf("unsupported depth %d", convertDepth)
	}
	filter, ok := ico.ParseFilter(convertFilter)
	if !ok {
		return fmt.Errorf("unknown filter %q", convertFilter)
	}
	if convertCursor && len(convertHotspot) != 2 {
		return fmt.Errorf("hotspot needs two values, got %d", len(convertHotspot))
	}

	src, err := readImage(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	sb := src.Bounds()

	typ := ico.TypeIcon
	if convertCursor {
		typ = ico.TypeCursor
	}
	f := ico.NewFile(typ)
	for _, size := range convertSizes {
		e, err := ico.NewEntry(src, size, size, depth)
		if err != nil {
			return err
		}
		e.SetFilter(filter)
		e.SetAlphaThreshold(convertThreshold)
		if convertCursor {
			e.SetHotspot(convertHotspot[0]*size/sb.Dx(), convertHotspot[1]*size/sb.Dy())
		}
		if !f.Entries.Append(e) {
			logger.Warn("duplicate size ignored", "size", size)
		}
	}

	bb := new(bytes.Buffer)
	if err := ico.EncodeFile(bb, f, &ico.EncodeOptions{Logger: logger}); err != nil {
		return err
	}
	logger.Info("converted", "input", args[0], "type", typ, "entries", f.Entries.Len(), "bytes", bb.Len())
	return writeOutput(convertOutput, bb.Bytes())
}
