package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JohnPlummer/jp-go-access/redisaccess"
)

func newRedisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redis",
		Short: "Read keys from the configured Redis server",
	}
	cmd.AddCommand(newRedisGetCmd(), newRedisRangeCmd())
	return cmd
}

func openRedis() (*redisaccess.Client, error) {
	if state.cfg.Redis.URL == "" {
		return nil, fmt.Errorf("redis.url must be configured")
	}
	return redisaccess.Open(state.cfg.Redis, state.options("redis")...)
}

func newRedisGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value of a string key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openRedis()
			if err != nil {
				return err
			}
			defer client.Close()

			value, ok, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
}

func newRedisRangeCmd() *cobra.Command {
	var sorted bool

	cmd := &cobra.Command{
		Use:   "range [key]",
		Short: "Stream a list or sorted set in batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openRedis()
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			if !sorted {
				stream, err := client.StreamList(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer stream.Close()
				for batch, err := range stream.All(cmd.Context()) {
					if err != nil {
						return err
					}
					for _, v := range batch.Records {
						fmt.Fprintln(out, v)
					}
				}
				return nil
			}

			stream, err := client.StreamSortedSet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer stream.Close()
			for batch, err := range stream.All(cmd.Context()) {
				if err != nil {
					return err
				}
				for _, z := range batch.Records {
					fmt.Fprintf(out, "%v\t%g\n", z.Member, z.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sorted, "sorted", false, "read a sorted set with scores instead of a list")
	return cmd
}
