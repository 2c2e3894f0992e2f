package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
)

// Console is the line-oriented operator interface. It reads whitespace-
// separated commands from in and dispatches them onto the same services
// the HTTP API uses. Blocking reads keep it on its own goroutine.
type Console struct {
	commander ports.StationCommander
	registry  *registry.Registry
	identity  ports.IdentityService
	wallet    ports.WalletService
	in        io.Reader
	out       io.Writer
	log       *zap.Logger
}

// New creates a console bound to an input and output stream. cmd/server
// passes stdin and stdout; tests pass buffers.
func New(
	commander ports.StationCommander,
	reg *registry.Registry,
	identity ports.IdentityService,
	wallet ports.WalletService,
	in io.Reader,
	out io.Writer,
	log *zap.Logger,
) *Console {
	return &Console{
		commander: commander,
		registry:  reg,
		identity:  identity,
		wallet:    wallet,
		in:        in,
		out:       out,
		log:       log,
	}
}

// Run reads commands until EOF or an explicit exit. It never returns an
// error; command failures are printed, not propagated.
func (c *Console) Run() {
	scanner := bufio.NewScanner(c.in)
	fmt.Fprint(c.out, "> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.Fields(line)

		if len(parts) == 0 {
			fmt.Fprint(c.out, "> ")
			continue
		}

		cmd := parts[0]
		args := parts[1:]
		c.log.Debug("console command", zap.String("cmd", cmd), zap.Strings("args", args))

		switch cmd {
		case "ls":
			c.list()

		case "map":
			if len(args) < 1 {
				fmt.Fprintln(c.out, "Usage: map <cpid>")
			} else {
				c.mapStation(args[0])
			}

		case "config":
			if len(args) < 3 {
				fmt.Fprintln(c.out, "Usage: config <cpid> <key> <value>")
			} else {
				c.config(args[0], args[1], args[2])
			}

		case "start":
			if len(args) < 3 {
				fmt.Fprintln(c.out, "Usage: start <cpid> <connector> <idtag>")
			} else {
				c.start(args[0], args[1], args[2])
			}

		case "stop":
			if len(args) < 2 {
				fmt.Fprintln(c.out, "Usage: stop <cpid> <n>")
			} else {
				c.stop(args[0], args[1])
			}

		case "avail":
			if len(args) < 3 {
				fmt.Fprintln(c.out, "Usage: avail <cpid> <connector> on|off")
			} else {
				c.avail(args[0], args[1], args[2])
			}

		case "help":
			c.help()

		case "exit", "quit":
			fmt.Fprintln(c.out, "bye")
			return

		default:
			fmt.Fprintf(c.out, "unknown command %q, try help\n", cmd)
		}

		fmt.Fprint(c.out, "> ")
	}
}

func (c *Console) help() {
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  ls                                connected charge points")
	fmt.Fprintln(c.out, "  map <cpid>                        pending starts and identities")
	fmt.Fprintln(c.out, "  config <cpid> <key> <value>       push a configuration key")
	fmt.Fprintln(c.out, "  start <cpid> <connector> <idtag>  remote start")
	fmt.Fprintln(c.out, "  stop <cpid> <n>                   stop by connector or tx id, else unlock")
	fmt.Fprintln(c.out, "  avail <cpid> <connector> on|off   change availability")
	fmt.Fprintln(c.out, "  exit                              leave the console")
}

func (c *Console) list() {
	connected := c.commander.Connected()
	if len(connected) == 0 {
		fmt.Fprintln(c.out, "no charge points connected")
		return
	}

	fmt.Fprintf(c.out, "%-20s %-6s %-14s %s\n", "CPID", "CONN", "STATUS", "TX")
	for _, cpid := range connected {
		view, ok := c.registry.StationByName(cpid)
		if !ok || len(view.Connectors) == 0 {
			fmt.Fprintf(c.out, "%-20s %-6s %-14s %s\n", cpid, "-", "-", "-")
			continue
		}
		for _, conn := range view.Connectors {
			tx := "-"
			if conn.TransactionID != 0 {
				tx = strconv.Itoa(conn.TransactionID)
			}
			fmt.Fprintf(c.out, "%-20s %-6d %-14s %s\n", cpid, conn.Number, conn.Status, tx)
		}
	}
}

func (c *Console) mapStation(cpid string) {
	if _, ok := c.registry.StationByName(cpid); !ok {
		fmt.Fprintf(c.out, "unknown charge point %q\n", cpid)
		return
	}

	pending := make([]domain.PendingSession, 0)
	for _, p := range c.registry.PendingSessions() {
		if p.ChargePoint == cpid {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		fmt.Fprintln(c.out, "no pending starts")
	} else {
		fmt.Fprintf(c.out, "%-6s %-12s %-16s %s\n", "CONN", "IDTAG", "VID", "MAC")
		for _, p := range pending {
			fmt.Fprintf(c.out, "%-6d %-12s %-16s %s\n", p.ConnectorID, dash(p.IDTag), dash(p.VID), dash(p.MAC))
		}
	}

	vids := make(map[string]bool)
	for _, p := range pending {
		if p.VID != "" {
			vids[p.VID] = true
		}
	}
	for _, s := range c.registry.ActiveSessions() {
		if s.ChargePoint == cpid && s.VID != "" {
			vids[s.VID] = true
		}
	}
	if len(vids) == 0 {
		return
	}

	fmt.Fprintln(c.out, "identities:")
	for vid := range vids {
		balance, exists := c.wallet.Account(vid)
		if exists {
			fmt.Fprintf(c.out, "  %s balance=%.2f\n", vid, balance)
		} else {
			fmt.Fprintf(c.out, "  %s (no wallet)\n", vid)
		}
		for _, pair := range c.identity.Pairs() {
			if pair.VID == vid {
				fmt.Fprintf(c.out, "    %s=%s\n", pair.SourceType, pair.SourceValue)
			}
		}
	}
}

func (c *Console) config(cpid, key, value string) {
	status, err := c.commander.ChangeConfiguration(context.Background(), cpid, key, value)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s: %s=%s -> %s\n", cpid, key, value, status)
}

func (c *Console) start(cpid, connArg, idTag string) {
	connector, err := strconv.Atoi(connArg)
	if err != nil {
		fmt.Fprintf(c.out, "bad connector %q\n", connArg)
		return
	}
	if err := c.commander.StartSession(context.Background(), cpid, connector, idTag, "", ""); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "start accepted on %s connector %d\n", cpid, connector)
}

// stop tries n as a connector id first, then as a transaction id. When
// neither matches anything live, n goes to UnlockConnector as a last
// resort so an operator can always free a stuck plug.
func (c *Console) stop(cpid, nArg string) {
	n, err := strconv.Atoi(nArg)
	if err != nil {
		fmt.Fprintf(c.out, "bad argument %q\n", nArg)
		return
	}

	if sess, ok := c.registry.ActiveOnConnector(cpid, n); ok {
		if err := c.commander.StopTransaction(context.Background(), cpid, sess.TransactionID); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "stop dispatched for tx %d (connector %d)\n", sess.TransactionID, n)
		return
	}

	if sess, ok := c.registry.Session(n); ok && sess.ChargePoint == cpid && sess.State == domain.SessionStateActive {
		if err := c.commander.StopTransaction(context.Background(), cpid, n); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "stop dispatched for tx %d\n", n)
		return
	}

	status, err := c.commander.Unlock(context.Background(), cpid, n)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "no matching transaction, unlock connector %d -> %s\n", n, status)
}

func (c *Console) avail(cpid, connArg, state string) {
	connector, err := strconv.Atoi(connArg)
	if err != nil {
		fmt.Fprintf(c.out, "bad connector %q\n", connArg)
		return
	}
	if state != "on" && state != "off" {
		fmt.Fprintln(c.out, "state must be on or off")
		return
	}
	status, err := c.commander.ChangeAvailability(context.Background(), cpid, connector, state == "on")
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "availability %s on %s connector %d -> %s\n", state, cpid, connector, status)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
