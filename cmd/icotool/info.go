package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	ico "github.com/antoinefink/golang-icocur"
	"github.com/antoinefink/golang-icocur/ani"
)

var infoSkipBad bool

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info FILE",
		Short: "List the entries of an icon, cursor or animated cursor",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
	cmd.Flags().BoolVar(&infoSkipBad, "skip-bad", false, "Skip entries that fail to decode instead of aborting")
	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if bytes.HasPrefix(data, []byte("RIFF")) {
		opts := &ani.DecodeOptions{Logger: logger}
		if infoSkipBad {
			opts.OnEntryError = func(frame, entry int, err error) {}
		}
		f, err := ani.DecodeBytes(data, opts)
		if err != nil {
			return err
		}
		printAnimation(out, f)
		return nil
	}

	opts := &ico.DecodeOptions{Logger: logger}
	if infoSkipBad {
		opts.OnEntryError = func(index int, err error) {}
	}
	f, err := ico.DecodeBytes(data, opts)
	if err != nil {
		return err
	}
	printFile(out, f, "")
	return nil
}

func printFile(w io.Writer, f *ico.File, indent string) {
	fmt.Fprintf(w, "%s%s, %d entries\n", indent, f.Type, f.Entries.Len())
	for i, e := range f.Entries.Entries() {
		format := "bmp"
		if e.EncodesAsPNG() {
			format = "png"
		}
		fmt.Fprintf(w, "%s  %2d  %-16s %s", indent, i, e.Key(), format)
		if f.Type == ico.TypeCursor {
			x, y := e.Hotspot()
			fmt.Fprintf(w, "  hotspot %d,%d", x, y)
		}
		fmt.Fprintln(w)
	}
	for _, s := range f.Skipped {
		fmt.Fprintf(w, "%s  skipped: %v\n", indent, s)
	}
}

func printAnimation(w io.Writer, f *ani.File) {
	fmt.Fprintf(w, "animated cursor, %d frames, %d steps, rate %d jiffies, loop %.2fs\n",
		len(f.Frames), len(f.PlayOrder()), f.DisplayRate,
		float64(f.TotalDuration())/ani.JiffiesPerSecond)
	if f.Name != "" {
		fmt.Fprintf(w, "name: %s\n", f.Name)
	}
	if f.Author != "" {
		fmt.Fprintf(w, "author: %s\n", f.Author)
	}
	if len(f.Sequence) > 0 {
		fmt.Fprintf(w, "sequence: %v\n", f.Sequence)
	}
	for i, fr := range f.Frames {
		fmt.Fprintf(w, "frame %d, %d jiffies\n", i, f.EffectiveDuration(i))
		printFile(w, fr.Cursor, "  ")
	}
	for _, s := range f.Skipped {
		fmt.Fprintf(w, "skipped: %v\n", s)
	}
}
