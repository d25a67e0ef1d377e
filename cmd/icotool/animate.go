package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	ico "github.com/antoinefink/golang-icocur"
	"github.com/antoinefink/golang-icocur/ani"
)

var (
	animateOutput   string
	animateRate     uint32
	animateName     string
	animateAuthor   string
	animateSequence []int
)

func newAnimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "animate FRAME.cur...",
		Short: "Build an animated cursor from cursor files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnimate,
	}
	cmd.Flags().StringVarP(&animateOutput, "output", "o", "", "Output file (required, - for stdout)")
	cmd.Flags().Uint32Var(&animateRate, "rate", 10, "Frame duration in jiffies (1/60 s)")
	cmd.Flags().StringVar(&animateName, "name", "", "Title stored in the file")
	cmd.Flags().StringVar(&animateAuthor, "author", "", "Author stored in the file")
	cmd.Flags().IntSliceVar(&animateSequence, "sequence", nil, "Play order as frame indices")
	if err := cmd.MarkFlagRequired("output"); err != nil {
		panic(err)
	}
	return cmd
}

func runAnimate(cmd *cobra.Command, args []string) error {
	f := ani.New(animateRate)
	f.Name, f.Author = animateName, animateAuthor
	f.Sequence = animateSequence

	for _, path := range args {
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		cur, err := ico.DecodeFile(in, &ico.DecodeOptions{Logger: logger})
		in.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if cur.Type != ico.TypeCursor {
			logger.Warn("frame is an icon, storing it as a cursor", "file", path)
			cur.Type = ico.TypeCursor
		}
		f.AddFrame(cur)
	}

	bb := new(bytes.Buffer)
	if err := ani.Encode(bb, f, &ani.EncodeOptions{Logger: logger}); err != nil {
		return err
	}
	logger.Info("animated", "frames", len(f.Frames), "bytes", bb.Len())
	return writeOutput(animateOutput, bb.Bytes())
}
