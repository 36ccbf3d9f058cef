package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-inventory/internal/models"
)

var errNoTx = errors.New("memstore: no transaction")

type memTxKey struct{}

type memState struct {
	capacity map[string]models.ScheduleCapacity
	ledger   []models.SeatLedgerEntry
	bookings map[uuid.UUID]models.Booking
}

func (s memState) clone() memState {
	c := memState{
		capacity: make(map[string]models.ScheduleCapacity, len(s.capacity)),
		ledger:   append([]models.SeatLedgerEntry(nil), s.ledger...),
		bookings: make(map[uuid.UUID]models.Booking, len(s.bookings)),
	}
	for k, v := range s.capacity {
		c.capacity[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

// memStore is an in-memory stand-in for PostgreSQL. A single mutex held for the
// whole transaction gives serializable behaviour; a failed transaction restores
// the snapshot taken at begin.
type memStore struct {
	txMu sync.Mutex // held for the duration of a transaction
	mu   sync.Mutex // guards state for non-transactional reads
	st   memState

	failMu sync.Mutex
	failOn map[string]error

	refSeq int
}

func newMemStore() *memStore {
	return &memStore{
		st: memState{
			capacity: map[string]models.ScheduleCapacity{},
			bookings: map[uuid.UUID]models.Booking{},
		},
		failOn: map[string]error{},
	}
}

func (m *memStore) addSchedule(id string, total, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.capacity[id] = models.ScheduleCapacity{
		ScheduleID: id, TravelDate: time.Now(), TotalSeats: total, AvailableSeats: available,
	}
}

// injectFailure makes the named operation return err until cleared
func (m *memStore) injectFailure(op string, err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	if err == nil {
		delete(m.failOn, op)
		return
	}
	m.failOn[op] = err
}

func (m *memStore) fail(op string) error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.failOn[op]
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(memTxKey{}).(bool)
	return v
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.st.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// ---- CapacityStore ----

func (m *memStore) GetCapacity(ctx context.Context, scheduleID string) (*models.ScheduleCapacity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.capacity[scheduleID]
	if !ok {
		return nil, &models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	return &c, nil
}

func (m *memStore) LockCapacity(ctx context.Context, scheduleID string) (*models.ScheduleCapacity, error) {
	if !inTx(ctx) {
		return nil, errNoTx
	}
	return m.GetCapacity(ctx, scheduleID)
}

func (m *memStore) DecrementAvailable(ctx context.Context, scheduleID string, n int) (int, error) {
	if !inTx(ctx) {
		return 0, errNoTx
	}
	if err := m.fail("DecrementAvailable"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.capacity[scheduleID]
	if !ok {
		return 0, &models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	if c.AvailableSeats < n {
		return 0, &models.InsufficientCapacityError{ScheduleID: scheduleID, Requested: n, Available: c.AvailableSeats}
	}
	c.AvailableSeats -= n
	m.st.capacity[scheduleID] = c
	return c.AvailableSeats, nil
}

func (m *memStore) IncrementAvailable(ctx context.Context, scheduleID string, n int) (int, error) {
	if !inTx(ctx) {
		return 0, errNoTx
	}
	if err := m.fail("IncrementAvailable"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.capacity[scheduleID]
	if !ok {
		return 0, &models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	if c.AvailableSeats+n > c.TotalSeats {
		return 0, &models.CapacityOverflowError{ScheduleID: scheduleID, Increment: n, Available: c.AvailableSeats, Total: c.TotalSeats}
	}
	c.AvailableSeats += n
	m.st.capacity[scheduleID] = c
	return c.AvailableSeats, nil
}

func (m *memStore) CreateSchedule(ctx context.Context, capacity *models.ScheduleCapacity) error {
	if !inTx(ctx) {
		return errNoTx
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.st.capacity[capacity.ScheduleID]; exists {
		return &models.ScheduleExistsError{ScheduleID: capacity.ScheduleID}
	}
	capacity.CreatedAt = time.Now()
	capacity.UpdatedAt = capacity.CreatedAt
	m.st.capacity[capacity.ScheduleID] = *capacity
	return nil
}

func (m *memStore) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if !inTx(ctx) {
		return errNoTx
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.capacity[scheduleID]; !ok {
		return &models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	delete(m.st.capacity, scheduleID)
	return nil
}

func (m *memStore) AuditCounts(ctx context.Context) ([]models.InventoryAuditResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []models.InventoryAuditResult{}
	for id, c := range m.st.capacity {
		seen := map[string]int{}
		rows := 0
		for _, e := range m.st.ledger {
			if e.ScheduleID == id && e.Status == models.SeatLedgerBooked {
				rows++
				seen[e.SeatIdentifier]++
			}
		}
		results = append(results, models.InventoryAuditResult{
			ScheduleID: id, TotalSeats: c.TotalSeats, AvailableSeats: c.AvailableSeats,
			BookedLedgerRows: rows, DuplicateSeats: rows - len(seen),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ScheduleID < results[j].ScheduleID })
	return results, nil
}

// ---- SeatLedger ----

func (m *memStore) FindConflicting(ctx context.Context, scheduleID string, seats []string) ([]string, error) {
	if !inTx(ctx) {
		return nil, errNoTx
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, s := range seats {
		want[s] = true
	}
	conflicts := []string{}
	for _, e := range m.st.ledger {
		if e.ScheduleID == scheduleID && e.Status == models.SeatLedgerBooked && want[e.SeatIdentifier] {
			conflicts = append(conflicts, e.SeatIdentifier)
		}
	}
	sort.Strings(conflicts)
	return conflicts, nil
}

func (m *memStore) BookSeats(ctx context.Context, scheduleID string, bookingID uuid.UUID, seats []models.SeatAssignment) error {
	if !inTx(ctx) {
		return errNoTx
	}
	if err := m.fail("BookSeats"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seat := range seats {
		for _, e := range m.st.ledger {
			if e.ScheduleID == scheduleID && e.SeatIdentifier == seat.SeatIdentifier && e.Status == models.SeatLedgerBooked {
				return &models.SeatConflictError{ScheduleID: scheduleID, Seats: []string{seat.SeatIdentifier}}
			}
		}
		id := bookingID
		m.st.ledger = append(m.st.ledger, models.SeatLedgerEntry{
			ID:             int64(len(m.st.ledger) + 1),
			ScheduleID:     scheduleID,
			SeatIdentifier: seat.SeatIdentifier,
			BookingID:      &id,
			Status:         models.SeatLedgerBooked,
			CreatedAt:      time.Now(),
		})
	}
	return nil
}

func (m *memStore) ReleaseSeats(ctx context.Context, bookingID uuid.UUID) (int, error) {
	if !inTx(ctx) {
		return 0, errNoTx
	}
	if err := m.fail("ReleaseSeats"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	now := time.Now()
	for i, e := range m.st.ledger {
		if e.BookingID != nil && *e.BookingID == bookingID && e.Status == models.SeatLedgerBooked {
			m.st.ledger[i].Status = models.SeatLedgerCancelled
			m.st.ledger[i].ReleasedAt = &now
			released++
		}
	}
	return released, nil
}

func (m *memStore) BookedSeats(ctx context.Context, scheduleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seats := []string{}
	for _, e := range m.st.ledger {
		if e.ScheduleID == scheduleID && e.Status == models.SeatLedgerBooked {
			seats = append(seats, e.SeatIdentifier)
		}
	}
	sort.Strings(seats)
	return seats, nil
}

func (m *memStore) SeatsForBooking(ctx context.Context, bookingID uuid.UUID) ([]models.SeatLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := []models.SeatLedgerEntry{}
	for _, e := range m.st.ledger {
		if e.BookingID != nil && *e.BookingID == bookingID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *memStore) ledgerRows(bookingID uuid.UUID, status models.SeatLedgerStatus) int {
	entries, _ := m.SeatsForBooking(context.Background(), bookingID)
	n := 0
	for _, e := range entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

func (m *memStore) available(scheduleID string) int {
	c, err := m.GetCapacity(context.Background(), scheduleID)
	if err != nil {
		return -1
	}
	return c.AvailableSeats
}

// ---- BookingStore ----

func (m *memStore) GenerateBookingReference(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refSeq++
	return fmt.Sprintf("TB-%s-%06X", time.Now().Format("20060102"), m.refSeq), nil
}

func (m *memStore) Create(ctx context.Context, booking *models.Booking) error {
	if !inTx(ctx) {
		return errNoTx
	}
	if err := m.fail("Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	stored := *booking
	stored.Seats = nil
	m.st.bookings[booking.ID] = stored
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.st.bookings[id]
	if !ok {
		return nil, &models.NotFoundError{Resource: "booking", ID: id.String()}
	}
	return &b, nil
}

func (m *memStore) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	if reference == "" {
		return nil, models.ErrEmptyReference
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.st.bookings {
		if b.BookingReference == reference {
			found := b
			return &found, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "booking", ID: reference}
}

func (m *memStore) LockByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if !inTx(ctx) {
		return nil, errNoTx
	}
	return m.GetByID(ctx, id)
}

func (m *memStore) MarkCancelled(ctx context.Context, id uuid.UUID, update models.CancellationUpdate) error {
	if !inTx(ctx) {
		return errNoTx
	}
	if err := m.fail("MarkCancelled"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.st.bookings[id]
	if !ok || !b.IsActive() {
		return fmt.Errorf("booking %s was not updated", id)
	}
	now := time.Now()
	b.Status = models.BookingStatusCancelled
	b.PaymentStatus = update.PaymentStatus
	b.CancellationReason = update.Reason
	b.CancelledByUserID = update.CancelledBy
	b.CancelledAt = &now
	if update.RefundAmount != nil {
		b.RefundAmount = update.RefundAmount
		b.RefundedAt = &now
	}
	m.st.bookings[id] = b
	return nil
}

func (m *memStore) MarkPaid(ctx context.Context, id uuid.UUID) error {
	if !inTx(ctx) {
		return errNoTx
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.st.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s was not updated", id)
	}
	now := time.Now()
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = models.PaymentStatusPaid
	b.PaidAt = &now
	m.st.bookings[id] = b
	return nil
}

func (m *memStore) CountActiveBySchedule(ctx context.Context, scheduleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.st.bookings {
		if b.ScheduleID == scheduleID && b.Status != models.BookingStatusCancelled {
			n++
		}
	}
	return n, nil
}

// ---- SeatEventPublisher ----

type recordingPublisher struct {
	events chan models.SeatAvailabilityEvent
	err    error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan models.SeatAvailabilityEvent, 32)}
}

func (p *recordingPublisher) PublishSeatEvent(ctx context.Context, event models.SeatAvailabilityEvent) error {
	p.events <- event
	return p.err
}
