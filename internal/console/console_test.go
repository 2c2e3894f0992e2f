package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
	"github.com/seu-repo/ocpp-central/internal/mocks"
	"github.com/seu-repo/ocpp-central/internal/service/identity"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
	"github.com/seu-repo/ocpp-central/internal/service/wallet"
)

type consoleEnv struct {
	console   *Console
	registry  *registry.Registry
	commander *mocks.MockStationCommander
	out       *bytes.Buffer
}

func newConsoleEnv(t *testing.T, script string) *consoleEnv {
	t.Helper()

	log := zap.NewNop()
	env := &consoleEnv{
		registry:  registry.New(log),
		commander: &mocks.MockStationCommander{},
		out:       &bytes.Buffer{},
	}
	env.console = New(
		env.commander,
		env.registry,
		identity.NewService(log),
		wallet.NewService("BRL", 0, nil, nil, log),
		strings.NewReader(script),
		env.out,
		log,
	)
	return env
}

func TestConsole_ListConnected(t *testing.T) {
	env := newConsoleEnv(t, "ls\nexit\n")
	env.commander.ConnectedFunc = func() []string { return []string{"CP_A"} }
	env.registry.EnsureStation("CP_A")
	env.registry.SetConnectorStatus("CP_A", 1, domain.ConnectorStatusCharging, "NoError")
	env.registry.SetConnectorTransaction("CP_A", 1, 3)

	env.console.Run()

	out := env.out.String()
	if !strings.Contains(out, "CP_A") {
		t.Errorf("expected CP_A in listing, got %q", out)
	}
	if !strings.Contains(out, "Charging") {
		t.Errorf("expected connector status in listing, got %q", out)
	}
	if !strings.Contains(out, "3") {
		t.Errorf("expected transaction id in listing, got %q", out)
	}
}

func TestConsole_StartDispatches(t *testing.T) {
	env := newConsoleEnv(t, "start CP_A 1 TAG1\nexit\n")

	var gotCpid, gotTag string
	var gotConnector int
	env.commander.StartSessionFunc = func(ctx context.Context, cpid string, connector int, idTag, vid, mac string) error {
		gotCpid, gotConnector, gotTag = cpid, connector, idTag
		return nil
	}

	env.console.Run()

	if gotCpid != "CP_A" || gotConnector != 1 || gotTag != "TAG1" {
		t.Errorf("commander got (%s,%d,%s)", gotCpid, gotConnector, gotTag)
	}
	if !strings.Contains(env.out.String(), "start accepted") {
		t.Errorf("expected confirmation, got %q", env.out.String())
	}
}

func TestConsole_StopResolution(t *testing.T) {
	// Connector 1 carries tx 1; "stop CP_A 1" must resolve by connector,
	// "stop CP_A 9" matches nothing and falls back to unlock.
	env := newConsoleEnv(t, "stop CP_A 1\nstop CP_A 9\nexit\n")
	st := env.registry.EnsureStation("CP_A")
	env.registry.PutSession(domain.Session{
		TransactionID: env.registry.NextTransactionID(),
		StationID:     st.ID,
		ChargePoint:   "CP_A",
		ConnectorID:   1,
		State:         domain.SessionStateActive,
		StartTime:     time.Now(),
	})

	var stopped []int
	env.commander.StopTransactionFunc = func(ctx context.Context, cpid string, transactionID int) error {
		stopped = append(stopped, transactionID)
		return nil
	}
	var unlocked []int
	env.commander.UnlockFunc = func(ctx context.Context, cpid string, connector int) (string, error) {
		unlocked = append(unlocked, connector)
		return "Unlocked", nil
	}

	env.console.Run()

	if len(stopped) != 1 || stopped[0] != 1 {
		t.Errorf("expected stop for tx 1, got %v", stopped)
	}
	if len(unlocked) != 1 || unlocked[0] != 9 {
		t.Errorf("expected unlock fallback for 9, got %v", unlocked)
	}
}

func TestConsole_StopByTransactionID(t *testing.T) {
	// Tx 1 runs on connector 2, so the argument matches no connector and
	// must be retried as a transaction id.
	env := newConsoleEnv(t, "stop CP_A 1\nexit\n")
	st := env.registry.EnsureStation("CP_A")
	env.registry.PutSession(domain.Session{
		TransactionID: env.registry.NextTransactionID(),
		StationID:     st.ID,
		ChargePoint:   "CP_A",
		ConnectorID:   2,
		State:         domain.SessionStateActive,
		StartTime:     time.Now(),
	})

	var stopped []int
	env.commander.StopTransactionFunc = func(ctx context.Context, cpid string, transactionID int) error {
		stopped = append(stopped, transactionID)
		return nil
	}

	env.console.Run()

	if len(stopped) != 1 || stopped[0] != 1 {
		t.Errorf("expected stop for tx 1, got %v", stopped)
	}
}

func TestConsole_MapShowsPendingAndBalance(t *testing.T) {
	env := newConsoleEnv(t, "map CP_A\nexit\n")
	env.registry.EnsureStation("CP_A")
	env.registry.SetPending("CP_A", 1, "TAG1", "VID:0000000001", "")

	env.console.Run()

	out := env.out.String()
	if !strings.Contains(out, "TAG1") {
		t.Errorf("expected pending id tag, got %q", out)
	}
	if !strings.Contains(out, "VID:0000000001") {
		t.Errorf("expected pending vid, got %q", out)
	}
	if !strings.Contains(out, "no wallet") {
		t.Errorf("expected wallet note for unfunded vid, got %q", out)
	}
}

func TestConsole_AvailValidation(t *testing.T) {
	env := newConsoleEnv(t, "avail CP_A 1 sideways\navail CP_A 1 off\nexit\n")

	var gotAvailable *bool
	env.commander.ChangeAvailabilityFunc = func(ctx context.Context, cpid string, connector int, available bool) (string, error) {
		gotAvailable = &available
		return "Accepted", nil
	}

	env.console.Run()

	if !strings.Contains(env.out.String(), "state must be on or off") {
		t.Errorf("expected validation message, got %q", env.out.String())
	}
	if gotAvailable == nil || *gotAvailable != false {
		t.Errorf("expected availability change to off, got %v", gotAvailable)
	}
}

func TestConsole_UnknownCommand(t *testing.T) {
	env := newConsoleEnv(t, "frobnicate\nexit\n")

	env.console.Run()

	if !strings.Contains(env.out.String(), "unknown command") {
		t.Errorf("expected unknown-command message, got %q", env.out.String())
	}
}
