package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JohnPlummer/jp-go-access/kafkaaccess"
)

func newKafkaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kafka",
		Short: "Produce to and consume from the configured Kafka brokers",
	}
	cmd.AddCommand(newKafkaProduceCmd(), newKafkaConsumeCmd())
	return cmd
}

func newKafkaProduceCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "produce [topic] [value...]",
		Short: "Produce one message per value",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			producer := kafkaaccess.NewProducer(state.cfg.Kafka, state.options("kafka")...)

			for _, value := range args[1:] {
				delivery, err := producer.Send(cmd.Context(), args[0], []byte(key), []byte(value))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "delivered to %s after %d attempt(s)\n", delivery.Topic, delivery.Attempts)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "message key")
	return cmd
}

func newKafkaConsumeCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "consume [topic]",
		Short: "Print messages until the topic stays quiet for kafka.idle_timeout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg.Kafka
			if group != "" {
				cfg.GroupID = group
			}

			stream, err := kafkaaccess.NewConsumer(cfg, state.options("kafka")...).Consume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer stream.Close()

			out := cmd.OutOrStdout()
			for batch, err := range stream.All(cmd.Context()) {
				if err != nil {
					return err
				}
				for _, m := range batch.Records {
					fmt.Fprintf(out, "%d\t%d\t%s\t%s\n", m.Partition, m.Offset, m.Key, m.Value)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "consumer group, overriding kafka.group_id")
	return cmd
}
