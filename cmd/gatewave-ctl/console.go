package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/gatewave/gatewave-go/pkg/barrier"
	"github.com/gatewave/gatewave-go/pkg/client"
	"github.com/gatewave/gatewave-go/pkg/dispatch"
)

const commandTimeout = 15 * time.Second

// console is the interactive command loop.
type console struct {
	c  *client.Client
	rl *readline.Instance

	// watching toggles live event printing.
	watching atomic.Bool
}

func newConsole(c *client.Client) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gatewave> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("create readline: %w", err)
	}

	con := &console{c: c, rl: rl}
	c.AddListener(con.handleEvent, dispatch.Filter{})
	return con, nil
}

func (con *console) Close() error {
	return con.rl.Close()
}

// start lists the inventory, subscribes every barrier and connects.
func (con *console) start(ctx context.Context) error {
	barriers, err := con.c.GetAllBarriers(ctx)
	if err != nil {
		return fmt.Errorf("list barriers: %w", err)
	}
	for _, b := range barriers {
		if err := con.c.Subscribe(ctx, b.ID); err != nil {
			return fmt.Errorf("subscribe %s: %w", b.ID, err)
		}
	}
	if err := con.c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	con.printBarriers(barriers)
	return nil
}

func (con *console) run(ctx context.Context) {
	con.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := con.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(con.rl.Stdout(), "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			con.printHelp()

		case "list", "ls":
			con.cmdList(ctx)

		case "open":
			con.cmdControl(ctx, args, "open", con.c.OpenBarrier)

		case "close":
			con.cmdControl(ctx, args, "close", con.c.CloseBarrier)

		case "light":
			con.cmdToggle(ctx, args, "light", con.c.LightOn, con.c.LightOff)

		case "vacation":
			con.cmdToggle(ctx, args, "vacation", con.c.VacationModeOn, con.c.VacationModeOff)

		case "watch", "w":
			con.cmdWatch()

		case "status":
			con.cmdStatus()

		case "quit", "exit", "q":
			return

		default:
			fmt.Fprintf(con.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (con *console) printHelp() {
	fmt.Fprint(con.rl.Stdout(), `Commands:
  list                  - list barriers and their state
  open <id>             - open a barrier
  close <id>            - close a barrier
  light on|off <id>     - switch the courtesy light
  vacation on|off <id>  - switch vacation mode
  watch                 - toggle live event printing
  status                - show connection state
  quit                  - exit
`)
}

// cmdList prints the snapshot cache rather than re-querying the backend:
// the feed keeps it current.
func (con *console) cmdList(ctx context.Context) {
	snapshots := con.c.Snapshots()
	if len(snapshots) == 0 {
		barriers, err := con.c.GetAllBarriers(ctx)
		if err != nil {
			fmt.Fprintf(con.rl.Stdout(), "Error: %v\n", err)
			return
		}
		con.printBarriers(barriers)
		return
	}

	ids := make([]string, 0, len(snapshots))
	for id := range snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := con.rl.Stdout()
	fmt.Fprintf(w, "%-28s %-10s %-7s %-9s %s\n", "ID", "STATUS", "LIGHT", "VACATION", "NAME")
	for _, id := range ids {
		s := snapshots[id]
		fmt.Fprintf(w, "%-28s %-10s %-7s %-9s %s\n",
			id, s.Status(), onOff(s.LightOn()), onOff(s.VacationMode()), s.DisplayName())
	}
}

func (con *console) printBarriers(barriers []barrier.Barrier) {
	w := con.rl.Stdout()
	fmt.Fprintf(w, "%-28s %-14s %-10s %s\n", "ID", "TYPE", "STATUS", "NAME")
	for _, b := range barriers {
		fmt.Fprintf(w, "%-28s %-14s %-10s %s\n",
			b.ID, b.Type, b.State.Status(), b.State.DisplayName())
	}
}

func (con *console) cmdControl(ctx context.Context, args []string, name string, call func(context.Context, string) error) {
	if len(args) != 1 {
		fmt.Fprintf(con.rl.Stdout(), "Usage: %s <id>\n", name)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := call(ctx, args[0]); err != nil {
		fmt.Fprintf(con.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(con.rl.Stdout(), "%s accepted for %s\n", name, args[0])
}

func (con *console) cmdToggle(ctx context.Context, args []string, name string, on, off func(context.Context, string) error) {
	if len(args) != 2 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintf(con.rl.Stdout(), "Usage: %s on|off <id>\n", name)
		return
	}
	call := on
	if args[0] == "off" {
		call = off
	}
	con.cmdControl(ctx, args[1:], name+" "+args[0], call)
}

func (con *console) cmdWatch() {
	watching := !con.watching.Load()
	con.watching.Store(watching)
	if watching {
		fmt.Fprintln(con.rl.Stdout(), "Watching events (run 'watch' again to stop)")
	} else {
		fmt.Fprintln(con.rl.Stdout(), "Stopped watching events")
	}
}

func (con *console) cmdStatus() {
	fmt.Fprintf(con.rl.Stdout(), "Connection: %s, %d barriers seen\n",
		con.c.State(), len(con.c.Snapshots()))
}

// handleEvent prints feed events while watch mode is on. Connection
// trouble is always shown.
func (con *console) handleEvent(event dispatch.Event) {
	w := con.rl.Stdout()

	switch e := event.(type) {
	case dispatch.ConnectionLostEvent:
		fmt.Fprintf(w, "! connection lost: %v\n", e.Err)
	case dispatch.ReconnectedEvent:
		fmt.Fprintln(w, "! reconnected")
	case dispatch.BarrierStateEvent:
		if con.watching.Load() {
			fmt.Fprintf(w, "* %s: %s light=%s vacation=%s\n",
				e.State.DeviceID, e.State.Status(),
				onOff(e.State.LightOn()), onOff(e.State.VacationMode()))
		}
	case dispatch.ObstructedEvent:
		fmt.Fprintf(w, "! %s obstructed\n", e.DeviceID)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
