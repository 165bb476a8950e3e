// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	dynamokv-cli put mykey "hello world"      --server http://localhost:8080
//	dynamokv-cli get mykey                    --server http://localhost:8080
//	dynamokv-cli delete mykey --context <ctx> --server http://localhost:8080
//	dynamokv-cli cluster nodes                --server http://localhost:8080
package main

import (
	"context"
	"dynamokv/internal/client"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
	putContext string
	delContext string
)

func main() {
	root := &cobra.Command{
		Use:   "dynamokv-cli",
		Short: "CLI client for a dynamokv cluster",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "dynamokv node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), clusterCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── put ────────────────────────────────────────────────────────────────

func putCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Put(context.Background(), args[0], []byte(args[1]), putContext)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&putContext, "context", "", "vector clock context from a prior get/put")
	return cmd
}

// ─── get ────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve every unreconciled sibling for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			siblings, err := c.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			if len(siblings) == 0 {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			for i, s := range siblings {
				fmt.Printf("--- sibling %d ---\n", i)
				fmt.Printf("value:     %s\n", string(s.Data))
				fmt.Printf("tombstone: %v\n", s.Tombstone)
				fmt.Printf("context:   %s\n", s.Context)
			}
			return nil
		},
	}
}

// ─── delete ─────────────────────────────────────────────────────────────

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Write a tombstone for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.Delete(context.Background(), args[0], delContext)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&delContext, "context", "", "vector clock context from a prior get/put")
	return cmd
}

// ─── cluster ────────────────────────────────────────────────────────────

func clusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster inspection commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nodes",
		Short: "Show this node's gossiped membership view",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/admin/membership")
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "ring",
		Short: "Show this node's virtual node layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/admin/ring")
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	})

	return cmd
}

// ─── helpers ────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
