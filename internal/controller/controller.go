// Package controller owns the single in-memory aggregate and arbitrates
// which store is authoritative for it. All CRUD collaborators mutate state
// through its typed command methods; nothing else touches the aggregate.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/domain/models"
	"github.com/careflowhq/careflow/internal/ledger"
	"github.com/careflowhq/careflow/internal/migrate"
	"github.com/careflowhq/careflow/pkg/ids"
)

// State is the reconciliation state for the current identity session.
type State string

const (
	StateUnauthenticated       State = "unauthenticated"
	StateAwaitingFirstSnapshot State = "awaiting_first_snapshot"
	StateRemoteAuthoritative   State = "remote_authoritative"
	StateOfflineFallback       State = "offline_fallback"
)

// ResetPhrase is the literal confirmation required by FactoryReset.
const ResetPhrase = "RESETAR"

var (
	// ErrMalformedImport reports a backup file that does not structurally
	// resemble an aggregate. Nothing is mutated.
	ErrMalformedImport = errors.New("import payload does not look like a backup")
	// ErrConfirmationRequired reports a destructive operation attempted
	// without its explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")
)

// LocalStore is the durable fallback and always-on backup.
type LocalStore interface {
	Load() models.AppData
	Save(models.AppData) error
	Reset() error
	ExportSnapshot(models.AppData) ([]byte, string, error)
}

// RemoteChannel is the live feed to the authoritative remote document.
type RemoteChannel interface {
	Subscribe(ctx context.Context, identity string, onData func(models.AppData), onError func(error)) func()
	Push(ctx context.Context, identity string, data models.AppData) error
}

const pushTimeout = 15 * time.Second

// Controller is the reconciliation orchestrator. A single mutex serializes
// every read-modify-write of the aggregate; mutations are copy-on-write, so
// a value handed out by Snapshot is never altered afterwards.
type Controller struct {
	local    LocalStore
	remote   RemoteChannel // nil in offline-only deployments
	debounce time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	state       State
	identity    string
	data        models.AppData
	loaded      bool
	session     uint64 // bumped on every identity change; stale callbacks check it
	unsubscribe func()
	pushTimer   *time.Timer
}

// New builds a controller seeded from the local store. remote may be nil,
// in which case identity sessions run permanently on the local fallback.
func New(local LocalStore, remote RemoteChannel, debounce time.Duration, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Controller{
		local:    local,
		remote:   remote,
		debounce: debounce,
		logger:   logger,
		state:    StateUnauthenticated,
		data:     local.Load(),
		loaded:   true,
	}
}

// SetIdentity starts a session for the given identity: the previous
// subscription (if any) is released and a new one opened. Until the first
// remote snapshot arrives the controller neither saves nor pushes.
func (c *Controller) SetIdentity(ctx context.Context, identity string) {
	c.mu.Lock()
	c.teardownLocked()
	c.identity = identity
	c.session++
	sess := c.session

	if c.remote == nil {
		c.state = StateOfflineFallback
		c.data = c.local.Load()
		c.loaded = true
		c.mu.Unlock()
		c.logger.Info("identity session without remote channel, staying local", zap.String("identity", identity))
		return
	}

	c.state = StateAwaitingFirstSnapshot
	c.loaded = false
	c.mu.Unlock()

	c.logger.Info("opening remote subscription", zap.String("identity", identity))
	unsub := c.remote.Subscribe(ctx, identity,
		func(data models.AppData) { c.handleRemoteData(sess, data) },
		func(err error) { c.handleRemoteError(sess, err) },
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == sess {
		c.unsubscribe = unsub
		return
	}
	// Identity changed while subscribing; release the orphan immediately.
	unsub()
}

// ClearIdentity ends the session: the subscription is torn down, any pending
// push is cancelled, and the aggregate is replaced with the local store's
// contents.
func (c *Controller) ClearIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.identity = ""
	c.session++
	c.state = StateUnauthenticated
	c.data = c.local.Load()
	c.loaded = true
	c.logger.Info("identity session ended")
}

// Shutdown releases the remote subscription and cancels pending pushes.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Controller) handleRemoteData(sess uint64, data models.AppData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess != c.session {
		return
	}
	// Wholesale replacement: a remote snapshot racing queued local edits
	// wins, by design. Last writer at the remote document prevails.
	c.data = data
	c.loaded = true
	if c.state != StateRemoteAuthoritative {
		c.logger.Info("remote snapshot received, remote store is authoritative")
	}
	c.state = StateRemoteAuthoritative
	if err := c.local.Save(data); err != nil {
		c.logger.Warn("local backup of remote snapshot failed", zap.Error(err))
	}
}

func (c *Controller) handleRemoteError(sess uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess != c.session {
		return
	}
	c.cancelPushLocked()
	c.data = c.local.Load()
	c.loaded = true
	c.state = StateOfflineFallback
	c.logger.Warn("remote channel failed, falling back to local store", zap.Error(err))
}

// Snapshot returns the current aggregate. The returned value is never
// mutated by the controller afterwards.
func (c *Controller) Snapshot() models.AppData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Status describes the reconciliation state for observability surfaces.
type Status struct {
	State    State  `json:"state"`
	Identity string `json:"identity"`
	Loaded   bool   `json:"loaded"`
}

// Status reports the current state, identity and load flag.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, Identity: c.identity, Loaded: c.loaded}
}

// apply is the single mutation-serialization point. The mutated aggregate is
// saved to the local store in the same call; in remote-authoritative state a
// debounced push is (re)armed. A local save failure is returned to the
// caller but the in-memory aggregate keeps the new value.
func (c *Controller) apply(mutate func(models.AppData) models.AppData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = mutate(c.data)
	if !c.loaded {
		return nil
	}

	var saveErr error
	if err := c.local.Save(c.data); err != nil {
		c.logger.Warn("local save failed", zap.Error(err))
		saveErr = err
	}
	if c.state == StateRemoteAuthoritative {
		c.schedulePushLocked()
	}
	return saveErr
}

// schedulePushLocked rearms the single-shot debounce timer. Only the last
// mutation within an idle window results in a remote write, and the write
// carries the aggregate as of firing time.
func (c *Controller) schedulePushLocked() {
	if c.pushTimer != nil {
		c.pushTimer.Stop()
	}
	sess := c.session
	c.pushTimer = time.AfterFunc(c.debounce, func() { c.firePush(sess) })
}

func (c *Controller) firePush(sess uint64) {
	c.mu.Lock()
	if sess != c.session || c.state != StateRemoteAuthoritative {
		c.mu.Unlock()
		return
	}
	identity := c.identity
	data := c.data
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := c.remote.Push(ctx, identity, data); err != nil {
		// Transient by definition: the next mutation's debounce window
		// retries naturally, and the state machine stays put.
		c.logger.Warn("remote push failed", zap.String("identity", identity), zap.Error(err))
		return
	}
	c.logger.Debug("aggregate pushed", zap.String("identity", identity))
}

func (c *Controller) cancelPushLocked() {
	if c.pushTimer != nil {
		c.pushTimer.Stop()
		c.pushTimer = nil
	}
}

func (c *Controller) teardownLocked() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.cancelPushLocked()
}

// --- import / export / reset ---

// Import replaces the whole aggregate with the content of a backup file.
// The payload is accepted only when it structurally resembles an aggregate
// (residents and products must both be arrays) and the caller has confirmed
// the destructive replace; otherwise nothing changes.
func (c *Controller) Import(raw []byte, confirmed bool) error {
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if _, ok := tree["residents"].([]any); !ok {
		return ErrMalformedImport
	}
	if _, ok := tree["products"].([]any); !ok {
		return ErrMalformedImport
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	imported := migrate.FromRaw(tree)
	c.logger.Info("restoring aggregate from imported backup")
	return c.apply(func(models.AppData) models.AppData { return imported })
}

// Export serializes the current aggregate exactly as held in memory into a
// date-stamped backup artifact.
func (c *Controller) Export() ([]byte, string, error) {
	return c.local.ExportSnapshot(c.Snapshot())
}

// FactoryReset erases both local slots and replaces the aggregate with the
// initial one. It requires the literal confirmation phrase.
func (c *Controller) FactoryReset(confirmation string) error {
	if strings.TrimSpace(confirmation) != ResetPhrase {
		return ErrConfirmationRequired
	}
	if err := c.local.Reset(); err != nil {
		return fmt.Errorf("failed to erase local slots: %w", err)
	}
	c.logger.Warn("factory reset performed")
	return c.apply(func(models.AppData) models.AppData { return models.Initial() })
}

// --- stock ledger operations ---

// AppendTransaction records a stock movement and applies its delta.
func (c *Controller) AppendTransaction(tx models.Transaction) error {
	return c.apply(func(d models.AppData) models.AppData { return ledger.Append(d, tx) })
}

// RemoveTransaction deletes a ledger entry, reverting its stock effect.
func (c *Controller) RemoveTransaction(id string) error {
	return c.apply(func(d models.AppData) models.AppData { return ledger.Remove(d, id) })
}

// AmendTransaction replaces a ledger entry, adjusting stock by the quantity
// difference.
func (c *Controller) AmendTransaction(tx models.Transaction) error {
	return c.apply(func(d models.AppData) models.AppData { return ledger.Amend(d, tx) })
}

// --- collection mutations ---

// UpsertResident inserts or replaces a resident, assigning an id if absent.
func (c *Controller) UpsertResident(r models.Resident) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Residents = replaceOrAppend(next.Residents, r, func(x models.Resident) bool { return x.ID == r.ID })
		return next
	})
}

// DeleteResident removes the resident with the given id.
func (c *Controller) DeleteResident(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Residents = removeWhere(next.Residents, func(x models.Resident) bool { return x.ID == id })
		return next
	})
}

// UpsertProduct inserts or replaces a product, assigning an id if absent.
func (c *Controller) UpsertProduct(p models.Product) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Products = replaceOrAppend(next.Products, p, func(x models.Product) bool { return x.ID == p.ID })
		return next
	})
}

// DeleteProduct removes the product with the given id. Ledger entries that
// reference it become dangling and keep their frozen display name.
func (c *Controller) DeleteProduct(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Products = removeWhere(next.Products, func(x models.Product) bool { return x.ID == id })
		return next
	})
}

// UpsertPrescription inserts or replaces a prescription.
func (c *Controller) UpsertPrescription(p models.Prescription) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Prescriptions = replaceOrAppend(next.Prescriptions, p, func(x models.Prescription) bool { return x.ID == p.ID })
		return next
	})
}

// DeletePrescription removes the prescription with the given id.
func (c *Controller) DeletePrescription(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Prescriptions = removeWhere(next.Prescriptions, func(x models.Prescription) bool { return x.ID == id })
		return next
	})
}

// UpsertAppointment inserts or replaces a medical appointment.
func (c *Controller) UpsertAppointment(a models.MedicalAppointment) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.MedicalAppts = replaceOrAppend(next.MedicalAppts, a, func(x models.MedicalAppointment) bool { return x.ID == a.ID })
		return next
	})
}

// DeleteAppointment removes the appointment with the given id.
func (c *Controller) DeleteAppointment(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.MedicalAppts = removeWhere(next.MedicalAppts, func(x models.MedicalAppointment) bool { return x.ID == id })
		return next
	})
}

// UpsertDemand inserts or replaces a demand.
func (c *Controller) UpsertDemand(dm models.Demand) error {
	if dm.ID == "" {
		dm.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Demands = replaceOrAppend(next.Demands, dm, func(x models.Demand) bool { return x.ID == dm.ID })
		return next
	})
}

// DeleteDemand removes the demand with the given id.
func (c *Controller) DeleteDemand(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Demands = removeWhere(next.Demands, func(x models.Demand) bool { return x.ID == id })
		return next
	})
}

// UpsertProfessional inserts or replaces a professional.
func (c *Controller) UpsertProfessional(p models.Professional) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Professionals = replaceOrAppend(next.Professionals, p, func(x models.Professional) bool { return x.ID == p.ID })
		return next
	})
}

// DeleteProfessional removes the professional with the given id.
func (c *Controller) DeleteProfessional(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Professionals = removeWhere(next.Professionals, func(x models.Professional) bool { return x.ID == id })
		return next
	})
}

// UpsertEmployee inserts or replaces an employee.
func (c *Controller) UpsertEmployee(e models.Employee) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Employees = replaceOrAppend(next.Employees, e, func(x models.Employee) bool { return x.ID == e.ID })
		return next
	})
}

// DeleteEmployee removes the employee with the given id.
func (c *Controller) DeleteEmployee(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Employees = removeWhere(next.Employees, func(x models.Employee) bool { return x.ID == id })
		return next
	})
}

// SetEmployeeRoles replaces the employee-role name list.
func (c *Controller) SetEmployeeRoles(roles []string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.EmployeeRoles = append([]string{}, roles...)
		return next
	})
}

// UpsertTimeSheet records presence for one employee on one date. The pair
// (date, employee) is unique; an existing entry is left untouched.
func (c *Controller) UpsertTimeSheet(entry models.TimeSheetEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		for _, ts := range d.TimeSheets {
			if ts.Date == entry.Date && ts.EmployeeID == entry.EmployeeID {
				return d
			}
		}
		next := d.Clone()
		next.TimeSheets = append(next.TimeSheets, entry)
		return next
	})
}

// DeleteTimeSheet removes the presence entry for the (date, employee) pair.
func (c *Controller) DeleteTimeSheet(date, employeeID string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.TimeSheets = removeWhere(next.TimeSheets, func(x models.TimeSheetEntry) bool {
			return x.Date == date && x.EmployeeID == employeeID
		})
		return next
	})
}

// UpsertTechnicalSession inserts or replaces a technical-care session.
func (c *Controller) UpsertTechnicalSession(s models.TechnicalSession) error {
	if s.ID == "" {
		s.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.TechnicalSessions = replaceOrAppend(next.TechnicalSessions, s, func(x models.TechnicalSession) bool { return x.ID == s.ID })
		return next
	})
}

// DeleteTechnicalSession removes the session with the given id.
func (c *Controller) DeleteTechnicalSession(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.TechnicalSessions = removeWhere(next.TechnicalSessions, func(x models.TechnicalSession) bool { return x.ID == id })
		return next
	})
}

// SaveEvolutions upserts a batch of evolution records. A record replaces an
// existing one for the same resident and role covering the same period:
// the same day for daily records, the same month otherwise.
func (c *Controller) SaveEvolutions(records []models.EvolutionRecord) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		for _, record := range records {
			if record.ID == "" {
				record.ID = ids.New()
			}
			idx := -1
			for i, ev := range next.Evolutions {
				if ev.ResidentID != record.ResidentID || ev.Role != record.Role {
					continue
				}
				if record.Type == "DIARIA" {
					if ev.Date == record.Date {
						idx = i
						break
					}
				} else if monthOf(ev.Date) == monthOf(record.Date) {
					idx = i
					break
				}
			}
			if idx >= 0 {
				next.Evolutions[idx] = record
			} else {
				next.Evolutions = append(next.Evolutions, record)
			}
		}
		return next
	})
}

// DeleteEvolution removes the evolution record with the given id.
func (c *Controller) DeleteEvolution(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.Evolutions = removeWhere(next.Evolutions, func(x models.EvolutionRecord) bool { return x.ID == id })
		return next
	})
}

// UpsertHouseDocument inserts or replaces a house document.
func (c *Controller) UpsertHouseDocument(doc models.HouseDocument) error {
	if doc.ID == "" {
		doc.ID = ids.New()
	}
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.HouseDocuments = replaceOrAppend(next.HouseDocuments, doc, func(x models.HouseDocument) bool { return x.ID == doc.ID })
		return next
	})
}

// DeleteHouseDocument removes the house document with the given id.
func (c *Controller) DeleteHouseDocument(id string) error {
	return c.apply(func(d models.AppData) models.AppData {
		next := d.Clone()
		next.HouseDocuments = removeWhere(next.HouseDocuments, func(x models.HouseDocument) bool { return x.ID == id })
		return next
	})
}

func monthOf(date string) string {
	if len(date) >= 7 {
		return date[:7]
	}
	return date
}

func replaceOrAppend[T any](items []T, item T, match func(T) bool) []T {
	for i := range items {
		if match(items[i]) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func removeWhere[T any](items []T, match func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if !match(item) {
			out = append(out, item)
		}
	}
	return out
}
