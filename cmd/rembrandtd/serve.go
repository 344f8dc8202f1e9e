package main

import (
	"fmt"
	"net"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// serveCmd runs the long-lived orchestrator core in the foreground (§1,
// §6): it owns the session manager, worktree manager, and merge pipeline,
// and serves every other command's requests over a unix socket rooted in
// the workspace. net/rpc is used rather than a third-party RPC framework
// because nothing in the example pack ships a reusable one (DESIGN.md).
var serveCmd = &cobra.Command{
	Use:    "serve",
	Short:  "Run the orchestrator daemon in the foreground",
	Hidden: true,
	RunE:   runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ws, err := resolveWorkspace(cmd)
	if err != nil {
		return err
	}
	if err := ws.requireInitialized(); err != nil {
		return err
	}
	cfg, err := ws.loadConfig()
	if err != nil {
		return err
	}
	log, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	svc, err := newService(ws, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := rpc.NewServer()
	if err := server.RegisterName("rembrandt", svc); err != nil {
		return fmt.Errorf("register rpc service: %w", err)
	}

	_ = os.Remove(ws.socketPath())
	listener, err := net.Listen("unix", ws.socketPath())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", ws.socketPath(), err)
	}
	defer listener.Close()
	defer os.Remove(ws.socketPath())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		listener.Close()
	}()

	log.WithField("socket", ws.socketPath()).Info("rembrandtd serving")
	for {
		conn, err := listener.Accept()
		if err != nil {
			return nil // listener closed on shutdown
		}
		go server.ServeConn(conn)
	}
}
