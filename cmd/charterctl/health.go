package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/charters/internal/server"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func defaultGRPCAddr() string {
	if s := os.Getenv("CHARTERS_GRPC"); s != "" {
		return s
	}
	return activeRemoteGRPCAddr()
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the charters service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		grpcAddr, _ := cmd.Flags().GetString("grpc")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		result := map[string]string{}
		status, err := charterClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		result["http"] = status

		if grpcAddr != "" {
			grpcStatus, err := probeGRPC(ctx, grpcAddr, authToken)
			if err != nil {
				return fmt.Errorf("checking gRPC health: %w", err)
			}
			result["grpc"] = grpcStatus
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, result); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "HTTP: %s\n", result["http"])
			if s, ok := result["grpc"]; ok {
				fmt.Fprintf(out, "gRPC: %s\n", s)
			}
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		if s, ok := result["grpc"]; ok && s != healthpb.HealthCheckResponse_SERVING.String() {
			return fmt.Errorf("gRPC unhealthy: %s", s)
		}
		return nil
	},
}

// bearerTokenInterceptor attaches a Bearer token to every outgoing call.
func bearerTokenInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// probeGRPC asks the standard health service for the charter service status.
func probeGRPC(ctx context.Context, addr, token string) (string, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if token != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(bearerTokenInterceptor(token)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{
		Service: server.HealthServiceName,
	})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}

func init() {
	healthCmd.Flags().String("grpc", defaultGRPCAddr(), "also probe the gRPC health service at this address")
	healthCmd.Flags().Duration("timeout", 5*time.Second, "overall probe timeout")
}
