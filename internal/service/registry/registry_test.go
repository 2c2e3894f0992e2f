package registry

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/domain"
)

func newTestRegistry() *Registry {
	return New(zap.NewNop())
}

func TestRegistry_CreateStation_AutoIncrementIDs(t *testing.T) {
	// Arrange
	r := newTestRegistry()

	// Act
	a := r.CreateStation("CP_A", "lot 1")
	b := r.CreateStation("CP_B", "")

	// Assert
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", a.ID, b.ID)
	}
	if a.Location != "lot 1" {
		t.Fatalf("expected location kept, got %q", a.Location)
	}
}

func TestRegistry_EnsureStation_IsIdempotent(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	first := r.EnsureStation("CP_A")

	// Act
	second := r.EnsureStation("CP_A")

	// Assert
	if first.ID != second.ID {
		t.Fatalf("expected same station id, got %d and %d", first.ID, second.ID)
	}
}

func TestRegistry_DeleteStation_DropsConnectorsAndPending(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	st := r.EnsureStation("CP_A")
	r.SetConnectorStatus("CP_A", 1, domain.ConnectorStatusPreparing, "NoError")
	r.SetPending("CP_A", 1, "TAG1", "", "")

	// Act
	ok := r.DeleteStation(st.ID)

	// Assert
	if !ok {
		t.Fatal("expected delete to succeed")
	}
	if _, found := r.StationByName("CP_A"); found {
		t.Fatal("expected station gone")
	}
	if _, found := r.Pending("CP_A", 1); found {
		t.Fatal("expected pending gone")
	}
	if got := len(r.ConnectorStatuses()); got != 0 {
		t.Fatalf("expected no connectors, got %d", got)
	}
}

func TestRegistry_SetConnectorStatus_ReportsPrevious(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	r.EnsureStation("CP_A")

	// Act
	_, prev1 := r.SetConnectorStatus("CP_A", 1, domain.ConnectorStatusPreparing, "NoError")
	conn, prev2 := r.SetConnectorStatus("CP_A", 1, domain.ConnectorStatusCharging, "NoError")

	// Assert
	if prev1 != domain.ConnectorStatusAvailable {
		t.Fatalf("expected new connector to start Available, got %s", prev1)
	}
	if prev2 != domain.ConnectorStatusPreparing {
		t.Fatalf("expected previous Preparing, got %s", prev2)
	}
	if conn.Status != domain.ConnectorStatusCharging {
		t.Fatalf("expected Charging, got %s", conn.Status)
	}
}

func TestRegistry_SetPending_MergesFields(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	r.EnsureStation("CP_A")
	r.SetPending("CP_A", 1, "TAG1", "", "")

	// Act: a later update must not wipe the tag
	p := r.SetPending("CP_A", 1, "", "VEH1", "AA:BB:CC:DD:EE:FF")

	// Assert
	if p.IDTag != "TAG1" || p.VID != "VEH1" || p.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected pending %+v", p)
	}
}

func TestRegistry_TakeWildcard_RemovesConnectorZeroEntry(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	r.EnsureStation("CP_A")
	r.SetPending("CP_A", 0, "TAG1", "VEH1", "")

	// Act
	p, ok := r.TakeWildcard("CP_A")
	_, again := r.TakeWildcard("CP_A")

	// Assert
	if !ok || p.IDTag != "TAG1" || p.VID != "VEH1" {
		t.Fatalf("expected wildcard entry, got %+v ok=%v", p, ok)
	}
	if again {
		t.Fatal("expected wildcard to be consumed")
	}
}

func TestRegistry_PromotePending_ReturnsDisplacedVIDs(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	r.EnsureStation("CP_A")
	r.SetPending("CP_A", 1, "", "VID:0000000001", "")
	r.SetPending("CP_A", 2, "", "", "")

	// Act
	displaced := r.PromotePending("CP_A", "VID:0000000002", "AA:BB:CC:DD:EE:FF")

	// Assert
	if len(displaced) != 1 || displaced[0] != "VID:0000000001" {
		t.Fatalf("expected displaced [VID:0000000001], got %v", displaced)
	}
	p1, _ := r.Pending("CP_A", 1)
	p2, _ := r.Pending("CP_A", 2)
	if p1.VID != "VID:0000000002" || p2.VID != "VID:0000000002" {
		t.Fatalf("expected both entries promoted, got %+v and %+v", p1, p2)
	}
	if p1.MAC != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("expected mac recorded, got %+v", p1)
	}
}

func TestRegistry_NextTransactionID_MonotonicFromOne(t *testing.T) {
	// Arrange
	r := newTestRegistry()

	// Act
	first := r.NextTransactionID()
	second := r.NextTransactionID()

	// Assert
	if first != 1 || second != 2 {
		t.Fatalf("expected 1 then 2, got %d then %d", first, second)
	}
}

func TestRegistry_ActiveOnConnector_FindsOnlyLiveSession(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	r.EnsureStation("CP_A")
	now := time.Now()
	r.PutSession(domain.Session{
		TransactionID: 1, ChargePoint: "CP_A", ConnectorID: 1,
		State: domain.SessionStateActive, StartTime: now,
	})
	stop := now.Add(10 * time.Minute)
	r.PutSession(domain.Session{
		TransactionID: 2, ChargePoint: "CP_A", ConnectorID: 2,
		State: domain.SessionStateCompleted, StartTime: now, StopTime: &stop,
	})

	// Act
	live, ok := r.ActiveOnConnector("CP_A", 1)
	_, okDone := r.ActiveOnConnector("CP_A", 2)

	// Assert
	if !ok || live.TransactionID != 1 {
		t.Fatalf("expected tx 1 active, got %+v ok=%v", live, ok)
	}
	if okDone {
		t.Fatal("completed session must not count as active")
	}
}

func TestRegistry_UpdateSession_MutatesRow(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	r.PutSession(domain.Session{TransactionID: 1, State: domain.SessionStateActive})

	// Act
	ok := r.UpdateSession(1, func(s *domain.Session) {
		current := 10.0
		s.Samples = append(s.Samples, domain.MeterSample{Timestamp: time.Now(), Current: &current})
	})

	// Assert
	if !ok {
		t.Fatal("expected update to find the session")
	}
	s, _ := r.Session(1)
	if len(s.Samples) != 1 || *s.Samples[0].Current != 10 {
		t.Fatalf("expected one sample with current 10, got %+v", s.Samples)
	}
}

func TestRegistry_Stations_ViewIncludesConnectors(t *testing.T) {
	// Arrange
	r := newTestRegistry()
	r.EnsureStation("CP_A")
	r.SetConnectorStatus("CP_A", 2, domain.ConnectorStatusAvailable, "NoError")
	r.SetConnectorStatus("CP_A", 1, domain.ConnectorStatusCharging, "NoError")

	// Act
	views := r.Stations()

	// Assert
	if len(views) != 1 {
		t.Fatalf("expected one station, got %d", len(views))
	}
	conns := views[0].Connectors
	if len(conns) != 2 || conns[0].Number != 1 || conns[1].Number != 2 {
		t.Fatalf("expected connectors ordered by number, got %+v", conns)
	}
}
