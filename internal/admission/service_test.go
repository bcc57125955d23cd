package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-inventory/internal/admission"
	"ticket-inventory/internal/engine"
	"ticket-inventory/internal/models"
)

// MockStore is an in-memory TicketStore.
type MockStore struct {
	tickets map[string]*models.Ticket
	events  map[string]*models.Event
	failOn  string
	err     error
}

func NewMockStore() *MockStore {
	return &MockStore{
		tickets: make(map[string]*models.Ticket),
		events:  make(map[string]*models.Event),
	}
}

func (m *MockStore) GetTicketByID(_ context.Context, id string) (*models.Ticket, error) {
	if m.failOn == "GetTicketByID" {
		return nil, m.err
	}
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, engine.ErrTicketNotFound
	}
	copied := *ticket
	return &copied, nil
}

func (m *MockStore) GetTicketByCode(_ context.Context, code string) (*models.Ticket, error) {
	if m.failOn == "GetTicketByCode" {
		return nil, m.err
	}
	for _, ticket := range m.tickets {
		if ticket.AdmissionCode == code || ticket.TicketNumber == code {
			copied := *ticket
			return &copied, nil
		}
	}
	return nil, engine.ErrTicketNotFound
}

func (m *MockStore) GetEventByID(_ context.Context, id string) (*models.Event, error) {
	event, ok := m.events[id]
	if !ok {
		return nil, engine.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

// MockCoordinator applies VALID -> USED against the mock store.
type MockCoordinator struct {
	store *MockStore
	calls int
}

func (m *MockCoordinator) MarkAdmitted(_ context.Context, ticketID string, actor engine.Actor, at time.Time) (*models.Ticket, error) {
	m.calls++
	ticket, ok := m.store.tickets[ticketID]
	if !ok {
		return nil, engine.ErrTicketNotFound
	}
	if ticket.State == engine.StateUsed {
		return nil, &engine.AlreadyAdmittedError{AdmittedAt: ticket.AdmittedAt, AdmittedBy: ticket.AdmittedBy}
	}
	if ticket.State != engine.StateValid {
		return nil, &engine.NotAdmissibleError{State: ticket.State}
	}
	ticket.State = engine.StateUsed
	ticket.AdmittedAt = at
	ticket.AdmittedBy = actor.ID
	copied := *ticket
	return &copied, nil
}

type MockCache struct {
	entries map[string]string
	gets    int
	sets    int
	forgets int
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string]string)}
}

func (m *MockCache) GetTicketID(_ context.Context, code string) (string, error) {
	m.gets++
	return m.entries[code], nil
}

func (m *MockCache) SetTicketID(_ context.Context, code, ticketID string) error {
	m.sets++
	m.entries[code] = ticketID
	return nil
}

func (m *MockCache) Forget(_ context.Context, code string) error {
	m.forgets++
	delete(m.entries, code)
	return nil
}

type MockAudit struct {
	entries []models.AuditEntry
}

func (m *MockAudit) Append(_ context.Context, entry *models.AuditEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 20, 0, 0, 0, time.UTC)
}

func setupService() (*admission.Service, *MockStore, *MockCoordinator, *MockAudit) {
	store := NewMockStore()
	coordinator := &MockCoordinator{store: store}
	trail := &MockAudit{}

	store.events["event-1"] = &models.Event{
		ID:                "event-1",
		Name:              "test event",
		CapacityTotal:     100,
		CapacityRemaining: 50,
		WindowStart:       fixedNow().Add(-time.Hour),
		WindowEnd:         fixedNow().Add(time.Hour),
		LifecycleStatus:   engine.EventActive,
	}
	store.tickets["ticket-1"] = &models.Ticket{
		ID:            "ticket-1",
		EventID:       "event-1",
		TicketNumber:  "TKT-AAAA1111",
		AdmissionCode: "adm_opaque1",
		State:         engine.StateValid,
		PriceSnapshot: 1000,
		IssuedAt:      fixedNow().Add(-24 * time.Hour),
	}

	svc := admission.NewService(store, coordinator, nil, trail, nil)
	svc.Now = fixedNow
	return svc, store, coordinator, trail
}

var scanner = engine.Actor{ID: "scanner-1", Role: "scanner"}

func TestAdmitByAdmissionCode(t *testing.T) {
	svc, _, coordinator, _ := setupService()

	result, err := svc.Admit(context.Background(), "adm_opaque1", scanner)
	require.NoError(t, err)
	assert.Equal(t, engine.StateUsed, result.Ticket.State)
	assert.Equal(t, fixedNow(), result.AdmittedAt)
	assert.Equal(t, "scanner-1", result.Ticket.AdmittedBy)
	assert.Equal(t, 1, coordinator.calls)
}

func TestAdmitByTicketNumber(t *testing.T) {
	svc, _, _, _ := setupService()

	result, err := svc.Admit(context.Background(), "TKT-AAAA1111", scanner)
	require.NoError(t, err)
	assert.Equal(t, engine.StateUsed, result.Ticket.State)
}

func TestAdmitUnknownCode(t *testing.T) {
	svc, _, _, trail := setupService()

	_, err := svc.Admit(context.Background(), "adm_nothere", scanner)
	assert.ErrorIs(t, err, engine.ErrTicketNotFound)
	// Nothing resolvable, nothing to audit.
	assert.Empty(t, trail.entries)
}

// Scanning the same code twice yields success then ALREADY_ADMITTED with the
// original admission time, and the second scan changes nothing.
func TestAdmitIdempotence(t *testing.T) {
	svc, store, _, trail := setupService()
	ctx := context.Background()

	first, err := svc.Admit(ctx, "adm_opaque1", scanner)
	require.NoError(t, err)

	_, err = svc.Admit(ctx, "adm_opaque1", scanner)
	var already *engine.AlreadyAdmittedError
	if assert.ErrorAs(t, err, &already) {
		assert.Equal(t, first.AdmittedAt, already.AdmittedAt)
		assert.Equal(t, "scanner-1", already.AdmittedBy)
	}
	assert.Equal(t, engine.StateUsed, store.tickets["ticket-1"].State)

	// The rejected attempt is on the audit trail.
	require.Len(t, trail.entries, 1)
	assert.Equal(t, "ALREADY_ADMITTED", trail.entries[0].Outcome)
	assert.Equal(t, "scanner-1", trail.entries[0].Actor)
}

// A used ticket at an event whose window has ended must still report
// already-admitted, not event-ended.
func TestAdmitUsedBeatsWindowChecks(t *testing.T) {
	svc, store, _, _ := setupService()
	store.tickets["ticket-1"].State = engine.StateUsed
	store.tickets["ticket-1"].AdmittedAt = fixedNow().Add(-2 * time.Hour)
	store.tickets["ticket-1"].AdmittedBy = "scanner-0"
	store.events["event-1"].WindowEnd = fixedNow().Add(-time.Hour)

	_, err := svc.Admit(context.Background(), "adm_opaque1", scanner)
	var already *engine.AlreadyAdmittedError
	if assert.ErrorAs(t, err, &already) {
		assert.Equal(t, "scanner-0", already.AdmittedBy)
	}
}

func TestAdmitCancelledTicket(t *testing.T) {
	svc, store, coordinator, trail := setupService()
	store.tickets["ticket-1"].State = engine.StateCancelled

	_, err := svc.Admit(context.Background(), "adm_opaque1", scanner)
	var notAdmissible *engine.NotAdmissibleError
	if assert.ErrorAs(t, err, &notAdmissible) {
		assert.Equal(t, engine.StateCancelled, notAdmissible.State)
	}
	assert.Equal(t, 0, coordinator.calls)
	require.Len(t, trail.entries, 1)
	assert.Equal(t, "NOT_ADMISSIBLE", trail.entries[0].Outcome)
}

func TestAdmitExpiredTicket(t *testing.T) {
	svc, store, _, _ := setupService()
	store.tickets["ticket-1"].State = engine.StateExpired

	_, err := svc.Admit(context.Background(), "adm_opaque1", scanner)
	var notAdmissible *engine.NotAdmissibleError
	assert.ErrorAs(t, err, &notAdmissible)
}

func TestAdmitEventNotActive(t *testing.T) {
	svc, store, coordinator, _ := setupService()

	for _, status := range []engine.EventStatus{engine.EventDraft, engine.EventCancelled, engine.EventCompleted} {
		store.events["event-1"].LifecycleStatus = status
		_, err := svc.Admit(context.Background(), "adm_opaque1", scanner)
		assert.ErrorIs(t, err, engine.ErrEventNotActive, "status %s", status)
	}
	assert.Equal(t, 0, coordinator.calls)
}

// Window enforcement: too early and too late are distinct outcomes, and
// neither changes ticket state.
func TestAdmitWindowEnforcement(t *testing.T) {
	svc, store, _, _ := setupService()
	ctx := context.Background()

	store.events["event-1"].WindowStart = fixedNow().Add(time.Hour)
	store.events["event-1"].WindowEnd = fixedNow().Add(2 * time.Hour)
	_, err := svc.Admit(ctx, "adm_opaque1", scanner)
	assert.ErrorIs(t, err, engine.ErrEventNotStarted)
	assert.Equal(t, engine.StateValid, store.tickets["ticket-1"].State)

	store.events["event-1"].WindowStart = fixedNow().Add(-2 * time.Hour)
	store.events["event-1"].WindowEnd = fixedNow().Add(-time.Hour)
	_, err = svc.Admit(ctx, "adm_opaque1", scanner)
	assert.ErrorIs(t, err, engine.ErrEventEnded)
	assert.Equal(t, engine.StateValid, store.tickets["ticket-1"].State)
}

func TestAdmitUsesCodeCache(t *testing.T) {
	svc, _, _, _ := setupService()
	cache := NewMockCache()
	svc.Cache = cache
	ctx := context.Background()

	_, err := svc.Admit(ctx, "adm_opaque1", scanner)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.gets)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, "ticket-1", cache.entries["adm_opaque1"])
}

// A cache entry pointing at a ticket that no longer exists is dropped and the
// lookup falls back to the database.
func TestAdmitForgetsStaleCacheEntry(t *testing.T) {
	svc, _, _, _ := setupService()
	cache := NewMockCache()
	cache.entries["adm_opaque1"] = "ticket-deleted"
	svc.Cache = cache

	result, err := svc.Admit(context.Background(), "adm_opaque1", scanner)
	require.NoError(t, err)
	assert.Equal(t, "ticket-1", result.Ticket.ID)
	assert.Equal(t, 1, cache.forgets)
}

func TestAdmitStoreFailurePropagates(t *testing.T) {
	svc, store, _, _ := setupService()
	store.failOn = "GetTicketByCode"
	store.err = errors.New("connection reset")

	_, err := svc.Admit(context.Background(), "adm_opaque1", scanner)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrTicketNotFound)
}
