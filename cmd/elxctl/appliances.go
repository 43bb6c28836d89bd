package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/electrolux-bridge/internal/rpc"
)

type applianceRow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Created string `json:"created"`
}

var appliancesCmd = &cobra.Command{
	Use:   "appliances",
	Short: "List discovered appliances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			resp, err := rpc.NewClient(conn).Call(ctx, "ListAppliances", nil)
			if err != nil {
				return err
			}
			return printAppliances(os.Stdout, resp, _rootOpts.json)
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state <appliance>",
	Short: "Fetch the live state of an appliance by id or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			client := rpc.NewClient(conn)
			id, err := resolveAppliance(ctx, client, args[0])
			if err != nil {
				return err
			}
			resp, err := client.Call(ctx, "GetApplianceState", map[string]any{"appliance_id": id})
			if err != nil {
				return err
			}
			return printStruct(os.Stdout, resp)
		})
	},
}

var commandCmd = &cobra.Command{
	Use:   "command <appliance> <json>",
	Short: `Send a raw command, e.g. command Bedroom '{"executeCommand":"ON"}'`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body structpb.Struct
		if err := protojson.Unmarshal([]byte(args[1]), &body); err != nil {
			return err
		}
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			client := rpc.NewClient(conn)
			id, err := resolveAppliance(ctx, client, args[0])
			if err != nil {
				return err
			}
			resp, err := client.Call(ctx, "SendCommand", map[string]any{
				"appliance_id": id,
				"command":      body.AsMap(),
			})
			if err != nil {
				return err
			}
			return printStruct(os.Stdout, resp)
		})
	},
}

func init() {
	rootCmd.AddCommand(appliancesCmd, stateCmd, commandCmd)
}

func printAppliances(out io.Writer, resp *structpb.Struct, asJSON bool) error {
	if asJSON {
		return printStruct(out, resp)
	}
	var appliances []applianceRow
	if err := decodeField(resp, "appliances", &appliances); err != nil {
		return err
	}
	rows := [][]string{{"ID", "NAME", "TYPE", "CREATED"}}
	for _, a := range appliances {
		rows = append(rows, []string{a.ID, a.Name, a.Type, a.Created})
	}
	table(out, rows)
	if resp.GetFields()["degraded"].GetBoolValue() {
		_, _ = io.WriteString(out, "bridge is degraded: no stored credentials\n")
	}
	return nil
}

func resolveAppliance(ctx context.Context, client *rpc.Client, input string) (string, error) {
	resp, err := client.Call(ctx, "ListAppliances", nil)
	if err != nil {
		return "", err
	}
	var appliances []applianceRow
	if err := decodeField(resp, "appliances", &appliances); err != nil {
		return "", err
	}
	options := make(map[string]string, len(appliances))
	for _, a := range appliances {
		options[a.Name] = a.ID
	}
	return resolveNamedID("appliance", input, options)
}
