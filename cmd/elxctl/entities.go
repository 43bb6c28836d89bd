package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/rpc"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List entities and their current state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			resp, err := rpc.NewClient(conn).Call(ctx, "ListEntities", nil)
			if err != nil {
				return err
			}
			return printEntities(os.Stdout, resp, _rootOpts.json)
		})
	},
}

var controlCmd = &cobra.Command{
	Use:   "control <entity> <action> [value]",
	Short: "Control an entity, e.g. control electrolux_climate_A1 set_temperature 21.5",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := map[string]any{"entity_id": args[0], "action": args[1]}
		if len(args) == 3 {
			in["value"] = parseValue(args[2])
		}
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			resp, err := rpc.NewClient(conn).Call(ctx, "ControlEntity", in)
			if err != nil {
				return err
			}
			return printStruct(os.Stdout, resp)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show bridge health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			resp, err := rpc.NewClient(conn).Call(ctx, "Health", nil)
			if err != nil {
				return err
			}
			if _rootOpts.json {
				return printStruct(os.Stdout, resp)
			}
			fields := resp.GetFields()
			fmt.Printf("%s\t%s\n", fields["status"].GetStringValue(), fields["message"].GetStringValue())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(entitiesCmd, controlCmd, healthCmd)
}

// parseValue turns a command line argument into a number, bool or string.
func parseValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func printEntities(out io.Writer, resp *structpb.Struct, asJSON bool) error {
	if asJSON {
		return printStruct(out, resp)
	}
	var snaps []entity.Snapshot
	if err := decodeField(resp, "entities", &snaps); err != nil {
		return err
	}
	rows := [][]string{{"ID", "KIND", "STATE", "VALUE", "AVAILABLE"}}
	for _, s := range snaps {
		value := ""
		if s.Value != nil {
			value = strconv.FormatFloat(*s.Value, 'f', -1, 64)
			if s.Unit != "" {
				value += " " + s.Unit
			}
		}
		rows = append(rows, []string{s.ID, string(s.Kind), s.State, value, strconv.FormatBool(s.Available)})
	}
	table(out, rows)
	return nil
}
