package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/antoinefink/golang-icocur/resource"
)

var (
	extractKind   string
	extractGroup  int
	extractOutput string
	extractList   bool
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract EXE",
		Short: "Extract an icon or cursor group from a Windows executable",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	cmd.Flags().StringVar(&extractKind, "kind", "icon", "Resource kind: icon or cursor")
	cmd.Flags().IntVar(&extractGroup, "group", 0, "Index of the group to extract")
	cmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output file (- for stdout)")
	cmd.Flags().BoolVar(&extractList, "list", false, "List the groups instead of extracting one")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	var kind resource.Kind
	switch extractKind {
	case "icon":
		kind = resource.Icon
	case "cursor":
		kind = resource.Cursor
	default:
		return fmt.Errorf("unknown kind %q", extractKind)
	}

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	s, err := resource.LoadEXE(in, kind)
	if err != nil {
		return err
	}
	logger.Debug("loaded resources", "file", args[0], "kind", kind, "groups", s.GroupCount())

	if extractList {
		for i := 0; i < s.GroupCount(); i++ {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%v\n", i, s.GroupID(i))
		}
		return nil
	}
	if extractOutput == "" {
		return fmt.Errorf("required flag \"output\" not set")
	}

	data, err := resource.Assemble(s, extractGroup)
	if err != nil {
		return err
	}
	return writeOutput(extractOutput, data)
}
