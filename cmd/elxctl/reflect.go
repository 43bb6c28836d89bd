package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the services the bridge exposes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			services, err := grpcurl.ListServices(reflectionSource(ctx, conn))
			if err != nil {
				return fmt.Errorf("list services: %w", err)
			}
			for _, service := range services {
				fmt.Println(service)
			}
			return nil
		})
	},
}

var methodsCmd = &cobra.Command{
	Use:   "methods <service>",
	Short: "List the methods of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			methods, err := grpcurl.ListMethods(reflectionSource(ctx, conn), args[0])
			if err != nil {
				return fmt.Errorf("list methods: %w", err)
			}
			for _, method := range methods {
				fmt.Println(method)
			}
			return nil
		})
	},
}

var _callData string

var callCmd = &cobra.Command{
	Use:   "call <service/method>",
	Short: "Invoke any method with a JSON body (--data or stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd, func(ctx context.Context, conn *grpc.ClientConn) error {
			return invoke(ctx, conn, args[0], requestReader(_callData), os.Stdout)
		})
	},
}

func init() {
	callCmd.Flags().StringVar(&_callData, "data", "", "JSON request body")
	rootCmd.AddCommand(servicesCmd, methodsCmd, callCmd)
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in io.Reader, out io.Writer) error {
	descSource := reflectionSource(ctx, conn)
	parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, in, grpcurl.FormatOptions{})
	if err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	handler := grpcurl.NewDefaultEventHandler(out, descSource, formatter, false)
	if err := grpcurl.InvokeRPC(ctx, descSource, conn, method, nil, handler, parser.Next); err != nil {
		return fmt.Errorf("invoke: %w", err)
	}
	if handler.Status != nil && handler.Status.Err() != nil {
		return handler.Status.Err()
	}
	return nil
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func requestReader(data string) io.Reader {
	switch {
	case data != "":
		return strings.NewReader(data)
	case isStdinTerminal():
		return strings.NewReader("{}")
	default:
		return os.Stdin
	}
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
