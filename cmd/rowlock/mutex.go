package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pixperk/rowlock/pkg/client"
	"github.com/pixperk/rowlock/pkg/mutex"
	"github.com/pixperk/rowlock/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	remote  *client.Client
	manager *mutex.Manager

	// mutexCmd groups the lock operations run against a table server
	mutexCmd = &cobra.Command{
		Use:                "mutex",
		Short:              "Perform lock operations against a table server",
		PersistentPreRunE:  setupManager,
		PersistentPostRunE: closeManager,
	}

	createCmd = &cobra.Command{
		Use:   "create [lock-id]",
		Short: "Create a lock, unattended unless --acquire is set",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire",
		Short: "Acquire any free lock, or the one named by --lock-id",
		Args:  cobra.NoArgs,
		RunE:  runAcquire,
	}

	updateCmd = &cobra.Command{
		Use:   "update [lock-id] [version]",
		Short: "Renew the lease on a held lock",
		Args:  cobra.ExactArgs(2),
		RunE:  runWrite("update"),
	}

	releaseCmd = &cobra.Command{
		Use:   "release [lock-id] [version]",
		Short: "Release a held lock",
		Args:  cobra.ExactArgs(2),
		RunE:  runWrite("release"),
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [lock-id] [version]",
		Short: "Retire a lock for good",
		Args:  cobra.ExactArgs(2),
		RunE:  runWrite("delete"),
	}

	staleCmd = &cobra.Command{
		Use:   "stale",
		Short: "List the locks that can be acquired right now",
		Args:  cobra.NoArgs,
		RunE:  runStale,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect [lock-id]",
		Short: "Show a lock row and its lease state",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
)

func init() {
	pf := mutexCmd.PersistentFlags()
	pf.String("addr", "localhost:9000", "address of the table server")
	pf.String("table", "locks", "name or ID of the lock table")
	pf.String("owner", "", "owner written with every change")
	pf.Duration("lease-timeout", mutex.DefaultLeaseTimeout, "lease length")
	pf.Duration("request-timeout", client.DefaultRequestTimeout, "timeout of a single table request")
	pf.String("body", "", "JSON body to store with the change")

	createCmd.Flags().Bool("acquire", false, "create the lock already held")

	acquireCmd.Flags().String("lock-id", "", "acquire this lock only")
	acquireCmd.Flags().Duration("timeout", mutex.DefaultLeaseTimeout, "give up after this long, 0 waits forever")

	staleCmd.Flags().Bool("unattended", true, "include locks nobody has taken yet")
	staleCmd.Flags().Bool("expired", true, "include locks whose lease ran out")
	staleCmd.Flags().String("mask", "", "only consider this key")

	mutexCmd.AddCommand(createCmd, acquireCmd, updateCmd, releaseCmd, deleteCmd, staleCmd, inspectCmd)
}

func setupManager(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, args); err != nil {
		return err
	}

	c, err := client.New(client.Config{
		Addr:           viper.GetString("addr"),
		RequestTimeout: viper.GetDuration("request-timeout"),
	})
	if err != nil {
		return err
	}

	m, err := c.Mutexes(cmd.Context(), mutex.Config{
		Table:        viper.GetString("table"),
		Owner:        viper.GetString("owner"),
		LeaseTimeout: viper.GetDuration("lease-timeout"),
		Logger:       newLogger(),
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to open lock table: %w", err)
	}

	remote, manager = c, m
	return nil
}

func closeManager(*cobra.Command, []string) error {
	if remote != nil {
		return remote.Close()
	}
	return nil
}

func body() (json.RawMessage, error) {
	raw := viper.GetString("body")
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: body is not valid JSON", types.ErrInvalidRequest)
	}
	return json.RawMessage(raw), nil
}

// a nil handle means the call lost: the lock was taken or the handle was stale
func printHandle(h *types.Handle) {
	if h == nil {
		fmt.Println("none")
		os.Exit(2)
	}
	fmt.Printf("%s %s\n", h.Key, h.Version)
}

func runCreate(cmd *cobra.Command, args []string) error {
	b, err := body()
	if err != nil {
		return err
	}
	acquire, _ := cmd.Flags().GetBool("acquire")

	h, err := manager.Create(cmd.Context(), args[0], mutex.CreateOptions{Body: b, Acquire: acquire})
	if err != nil {
		return err
	}
	printHandle(h)
	return nil
}

func runAcquire(cmd *cobra.Command, _ []string) error {
	b, err := body()
	if err != nil {
		return err
	}
	lockID, _ := cmd.Flags().GetString("lock-id")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	h, err := manager.Acquire(cmd.Context(), mutex.AcquireOptions{
		Timeout: timeout,
		LockID:  lockID,
		Body:    b,
	})
	if err != nil {
		return err
	}
	printHandle(h)
	return nil
}

func runWrite(op string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		b, err := body()
		if err != nil {
			return err
		}
		h := &types.Handle{Key: args[0], Version: args[1]}
		opts := mutex.WriteOptions{Body: b}

		var next *types.Handle
		switch op {
		case "update":
			next, err = manager.Update(cmd.Context(), h, opts)
		case "release":
			next, err = manager.Release(cmd.Context(), h, opts)
		case "delete":
			next, err = manager.Delete(cmd.Context(), h, opts)
		}
		if err != nil {
			return err
		}
		printHandle(next)
		return nil
	}
}

func runStale(cmd *cobra.Command, _ []string) error {
	unattended, _ := cmd.Flags().GetBool("unattended")
	expired, _ := cmd.Flags().GetBool("expired")
	mask, _ := cmd.Flags().GetString("mask")

	keys, err := manager.Scan(cmd.Context(), mutex.ScanOptions{
		IncludeUnattended: unattended,
		IncludeExpired:    expired,
		KeyMask:           mask,
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	row, state, err := manager.Inspect(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if row == nil {
		fmt.Println("none")
		os.Exit(2)
	}

	out, err := json.MarshalIndent(struct {
		*types.Row
		State string `json:"state"`
	}{row, state.String()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

