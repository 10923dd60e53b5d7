package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/JohnPlummer/jp-go-access/mongoaccess"
)

func newMongoCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "mongo",
		Short: "Query collections in the configured MongoDB database",
	}
	cmd.PersistentFlags().StringVar(&filter, "filter", "{}", "filter document as extended JSON")

	parse := func() (bson.M, error) {
		var m bson.M
		if err := bson.UnmarshalExtJSON([]byte(filter), false, &m); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		return m, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "count [collection]",
		Short: "Count matching documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parse()
			if err != nil {
				return err
			}
			n, err := openMongo().CountDocuments(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "find [collection]",
		Short: "Stream matching documents in batches, one JSON line per document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parse()
			if err != nil {
				return err
			}
			stream, err := mongoaccess.Stream[bson.M](cmd.Context(), openMongo(), args[0], f)
			if err != nil {
				return err
			}
			defer stream.Close()

			out := cmd.OutOrStdout()
			for batch, err := range stream.All(cmd.Context()) {
				if err != nil {
					return err
				}
				for _, doc := range batch.Records {
					line, err := bson.MarshalExtJSON(doc, false, false)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(line))
				}
			}
			return nil
		},
	})
	return cmd
}

func openMongo() *mongoaccess.Client {
	return mongoaccess.New(state.cfg.Mongo, state.options("mongo")...)
}
