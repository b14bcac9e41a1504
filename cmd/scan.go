package cmd

import (
	"fmt"

	"LocalSpot/core/library"

	"github.com/spf13/cobra"
)

var scanCount bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "扫描曲库并输出所有曲目 id",
	Long:  `扫描一次 LIBRARY_ROOT，按路径顺序为每个音频文件输出 "<id>\t<相对路径>"。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib := library.New(library.NewCodec(cfg.LibraryRoot))
		snap, err := lib.Get(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if scanCount {
			fmt.Fprintln(out, snap.Len())
			return nil
		}
		for _, id := range lib.SortedIDs(snap) {
			path, _ := snap.Lookup(id)
			fmt.Fprintf(out, "%s\t%s\n", id, lib.Codec().Relative(path))
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanCount, "count", false, "只输出曲目数量")
	rootCmd.AddCommand(scanCmd)
}
