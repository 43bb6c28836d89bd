package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joshp123/electrolux-bridge/internal/config"
)

var _rootOpts struct {
	addr       string
	configFile string
	timeout    time.Duration
	json       bool
}

var v = config.New()

var rootCmd = &cobra.Command{
	Use:           "elxctl",
	Short:         "Talk to a running elxbridge over gRPC",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&_rootOpts.addr, "addr", "", "bridge gRPC address (default from ELX_SERVER_GRPC_ADDR or the config file)")
	rootCmd.PersistentFlags().StringVar(&_rootOpts.configFile, "config", config.DefaultConfigPath, "bridge config file")
	rootCmd.PersistentFlags().DurationVar(&_rootOpts.timeout, "timeout", 10*time.Second, "maximum duration of a call, eg. 1m or 10s")
	rootCmd.PersistentFlags().BoolVar(&_rootOpts.json, "json", false, "print raw JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveAddr prefers --addr, then the bridge configuration. Wildcard
// listen hosts are dialed on localhost.
func resolveAddr(cmd *cobra.Command, vp *viper.Viper) (string, error) {
	if _rootOpts.addr != "" {
		return _rootOpts.addr, nil
	}
	explicit := cmd.Flags().Changed("config")
	if err := config.ReadFile(vp, _rootOpts.configFile, explicit); err != nil {
		return "", err
	}
	return dialAddr(vp.GetString("server.grpc_addr"))
}

func dialAddr(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("bad grpc address %q: %w", listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port), nil
}

// withConn dials the bridge and runs fn with a call deadline.
func withConn(cmd *cobra.Command, fn func(ctx context.Context, conn *grpc.ClientConn) error) error {
	addr, err := resolveAddr(cmd, v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), _rootOpts.timeout)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	return fn(ctx, conn)
}
