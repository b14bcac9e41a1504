package cmd

import (
	"fmt"
	"path/filepath"

	"LocalSpot/core/library"

	"github.com/spf13/cobra"
)

var decodeIndexed bool

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "曲目 id 与路径互相转换",
}

var idEncodeCmd = &cobra.Command{
	Use:   "encode <path>",
	Short: "输出路径对应的 id（相对 LIBRARY_ROOT，或位于其中的绝对路径）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec := library.NewCodec(cfg.LibraryRoot)
		p := args[0]
		// 相对路径按音乐目录解析
		if !filepath.IsAbs(p) {
			p = filepath.Join(codec.Root(), p)
		}
		id, err := codec.EncodePath(p)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var idDecodeCmd = &cobra.Command{
	Use:   "decode <id>",
	Short: "输出 id 对应的绝对路径",
	Long: `解码 id 并输出绝对路径。
加上 --indexed 时先扫描音乐目录，只有 id 在索引中时才输出，和 /stream 的查找方式一致。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec := library.NewCodec(cfg.LibraryRoot)
		if decodeIndexed {
			path, err := library.New(codec).Resolve(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}

		path, err := codec.Decode(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	idDecodeCmd.Flags().BoolVar(&decodeIndexed, "indexed", false, "只接受当前索引中的曲目")
	idCmd.AddCommand(idEncodeCmd, idDecodeCmd)
	rootCmd.AddCommand(idCmd)
}
