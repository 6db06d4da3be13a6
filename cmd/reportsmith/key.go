package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/cachekey"
)

func keyCMD() *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Encode or decode report cache keys",
	}

	var topic, language string
	var subtopics int
	encode := &cobra.Command{
		Use:   "encode",
		Short: "Print the cache key and its URL path segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := cachekey.Encode(topic, language, subtopics)
			fmt.Fprintln(cmd.OutOrStdout(), k)
			fmt.Fprintln(cmd.OutOrStdout(), k.PathSegment())
			return nil
		},
	}
	encode.Flags().StringVarP(&topic, "topic", "t", "", "report topic")
	encode.Flags().StringVarP(&language, "language", "l", "English", "report language")
	encode.Flags().IntVarP(&subtopics, "subtopics", "n", 3, "number of subtopics")

	decode := &cobra.Command{
		Use:   "decode <key>",
		Short: "Split a cache key into its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := cachekey.Parse(cachekey.Key(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "topic:     %s\nlanguage:  %s\nsubtopics: %d\n", f.Topic, f.Language, f.Subtopics)
			return nil
		},
	}

	key.AddCommand(encode, decode)
	return key
}
