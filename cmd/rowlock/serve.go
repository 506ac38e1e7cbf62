package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	pb "github.com/pixperk/rowlock/api/v1"
	"github.com/pixperk/rowlock/pkg/gateway"
	"github.com/pixperk/rowlock/pkg/raft"
	"github.com/pixperk/rowlock/pkg/server"
	"github.com/pixperk/rowlock/pkg/storage"
	"github.com/pixperk/rowlock/pkg/table"
	"github.com/pixperk/rowlock/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run a table server",
	PreRunE: bindFlags,
	RunE:    runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("backend", "memory", "table backend (memory, bolt, raft)")
	f.String("grpc-addr", ":9000", "gRPC server address")
	f.String("http-addr", ":8080", "HTTP gateway address, empty to disable")
	f.String("data-dir", "./data", "data directory for the bolt and raft backends")
	f.StringSlice("tables", []string{"locks"}, "tables to create on startup if missing")

	f.String("node-id", "", "unique raft node ID (generates a UUID if empty)")
	f.String("raft-addr", "127.0.0.1:7000", "raft bind address")
	f.String("raft-advertise", "", "raft address advertised to peers, defaults to the bind address")
	f.Bool("bootstrap", false, "bootstrap a new raft cluster")
	f.StringSlice("peers", nil, "voters the bootstrap node adds once elected, as id=addr")
}

// what a running backend exposes to the serve loop
type backendHandle struct {
	table.Backend
	health func(ctx context.Context) error
	close  func() error
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	b, err := openBackend(logger)
	if err != nil {
		return err
	}
	defer b.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureTables(ctx, b, viper.GetStringSlice("tables"), logger); err != nil {
		return err
	}

	grpcAddr := viper.GetString("grpc-addr")
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	grpcServer := grpc.NewServer()
	pb.RegisterTableServiceServer(grpcServer, server.NewServer(b, logger))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", "addr", grpcAddr)
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	var gw *gateway.Server
	if httpAddr := viper.GetString("http-addr"); httpAddr != "" {
		gw = gateway.NewServer(httpAddr, b, b.health, logger)
		go func() {
			if err := gw.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	logger.Info("rowlock is ready", "backend", viper.GetString("backend"))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server stopped", "error", err)
	}

	grpcServer.GracefulStop()
	if gw != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gw.Stop(shutdownCtx)
	}
	return err
}

func openBackend(logger hclog.Logger) (*backendHandle, error) {
	switch backend := viper.GetString("backend"); backend {
	case "memory":
		return &backendHandle{
			Backend: table.NewMemory(logger),
			close:   func() error { return nil },
		}, nil

	case "bolt":
		bt, err := storage.OpenBoltTable(viper.GetString("data-dir"), logger)
		if err != nil {
			return nil, err
		}
		return &backendHandle{Backend: bt, close: bt.Close}, nil

	case "raft":
		return openRaft(logger)

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", types.ErrInvalidRequest, backend)
	}
}

func openRaft(logger hclog.Logger) (*backendHandle, error) {
	nid := uuid.New()
	if raw := viper.GetString("node-id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid node id: %w", err)
		}
		nid = parsed
	} else {
		logger.Info("generated node id", "id", nid)
	}

	node, err := raft.NewNode(&raft.Config{
		NodeID:        nid,
		BindAddr:      viper.GetString("raft-addr"),
		AdvertiseAddr: viper.GetString("raft-advertise"),
		DataDir:       viper.GetString("data-dir"),
		Bootstrap:     viper.GetBool("bootstrap"),
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create raft node: %w", err)
	}

	if err := node.WaitForLeader(10 * time.Second); err != nil {
		logger.Warn("no leader yet, serving anyway", "error", err)
	}

	if node.IsLeader() {
		for _, peer := range viper.GetStringSlice("peers") {
			id, addr, ok := strings.Cut(peer, "=")
			if !ok {
				node.Shutdown()
				return nil, fmt.Errorf("%w: peer %q is not id=addr", types.ErrInvalidRequest, peer)
			}
			if err := node.Join(id, addr); err != nil {
				logger.Error("failed to add peer", "id", id, "addr", addr, "error", err)
			}
		}
	}

	return &backendHandle{
		Backend: node,
		health: func(context.Context) error {
			if node.GetLeader() == "" {
				return errors.New("no raft leader")
			}
			return nil
		},
		close: node.Shutdown,
	}, nil
}

// followers leave table creation to the leader
func ensureTables(ctx context.Context, b table.Backend, names []string, logger hclog.Logger) error {
	for _, name := range names {
		if _, err := b.GetTable(ctx, name); err == nil {
			continue
		}

		info, err := b.CreateTable(ctx, name, "")
		switch {
		case err == nil:
			logger.Info("table ready", "name", info.Name, "id", info.ID)
		case errors.Is(err, types.ErrTableExists), errors.Is(err, types.ErrNotLeader):
			logger.Debug("table left to leader", "name", name, "error", err)
		default:
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
	}
	return nil
}
