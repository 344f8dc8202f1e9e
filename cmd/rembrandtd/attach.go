package main

import (
	"fmt"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const attachPollInterval = 33 * time.Millisecond

var attachCmd = &cobra.Command{
	Use:   "attach <id>",
	Short: "Attach the local terminal to a session",
	Long: `Puts the local terminal into raw mode and streams a session's output to
stdout while forwarding keystrokes to its stdin, the way attaching to any
interactive pty does. The renderer-core contract this mirrors is poll-based
(§6: get_history(session_id, offset)), so attach is a client polling loop,
not a dedicated streaming RPC.

Press Ctrl-] to detach without killing the session. Detach automatically
when the session exits.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

func runAttach(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	client, _, err := dial(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			_ = client.Call("rembrandt.Resize", ResizeArgs{SessionID: sessionID, Cols: uint16(w), Rows: uint16(h)}, &struct{}{})
		}
		oldState, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, oldState)
		}
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			if w, h, err := term.GetSize(fd); err == nil {
				_ = client.Call("rembrandt.Resize", ResizeArgs{SessionID: sessionID, Cols: uint16(w), Rows: uint16(h)}, &struct{}{})
			}
		}
	}()

	done := make(chan error, 1)
	go pollOutput(client, sessionID, done)
	go forwardStdin(client, sessionID)

	return <-done
}

// pollOutput repeatedly fetches new output bytes and writes them to stdout,
// returning once the session reaches a terminal status or a history call
// fails. Detaching on Ctrl-] (0x1d) is handled by forwardStdin, which exits
// the process directly.
func pollOutput(client *rpc.Client, sessionID string, done chan<- error) {
	var offset int64
	ticker := time.NewTicker(attachPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		reply := &GetHistoryReply{}
		if err := client.Call("rembrandt.GetHistory", GetHistoryArgs{SessionID: sessionID, Offset: offset}, reply); err != nil {
			done <- err
			return
		}
		if len(reply.Data) > 0 {
			os.Stdout.Write(reply.Data)
			offset = reply.Offset
		}
		if reply.Status.Terminal() {
			fmt.Fprintf(os.Stdout, "\r\n[session %s %s]\r\n", sessionID, reply.Status)
			done <- nil
			return
		}
	}
}

// forwardStdin copies raw keystrokes to the session, watching for the
// detach escape byte (Ctrl-]).
func forwardStdin(client *rpc.Client, sessionID string) {
	const detachByte = 0x1d
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for i, b := range chunk {
				if b == detachByte {
					if i > 0 {
						_ = client.Call("rembrandt.Write", WriteArgs{SessionID: sessionID, Data: append([]byte(nil), chunk[:i]...)}, &struct{}{})
					}
					os.Exit(0)
				}
			}
			data := append([]byte(nil), chunk...)
			_ = client.Call("rembrandt.Write", WriteArgs{SessionID: sessionID, Data: data}, &struct{}{})
		}
		if err != nil {
			return
		}
	}
}
