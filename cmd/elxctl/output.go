package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// printStruct writes resp as indented JSON.
func printStruct(out io.Writer, resp *structpb.Struct) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("format json: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// decodeField re-decodes one field of resp into dst.
func decodeField(resp *structpb.Struct, field string, dst any) error {
	data, err := json.Marshal(resp.GetFields()[field].AsInterface())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func table(out io.Writer, rows [][]string) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}
