package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/errcodes"
)

const (
	msgItemVerified    = "ASN/FSN verified successfully"
	msgItemNotFound    = "ASN/FSN not found"
	msgLabelVerified   = "MRP Label verified successfully"
	msgLabelNotFound   = "MRP Label does not exist"
	msgLabelMismatch   = "ID mismatch"
	msgLabelError      = "Error verifying MRP Label"
	msgSKUVerified     = "SKU code verified successfully"
	msgSKUMismatch     = "SKU code does not match"
	msgUnauthenticated = "User not authenticated"
	msgSaved           = "Dispatch saved successfully"
	msgSaveFailed      = "Error saving dispatch"

	// SoundError is the alert every scan error plays.
	SoundError = "error"

	// createdDateLayout matches what browsers send from toISOString.
	createdDateLayout = "2006-01-02T15:04:05.000Z"
)

// Feedback is the blocking error modal. Field is empty when the error is not
// tied to one input.
type Feedback struct {
	Sound   string `json:"sound"`
	Message string `json:"message"`
	Field   Field  `json:"field,omitempty"`
}

type Toast struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Scan is one operator's dispatch form.
type Scan struct {
	Item      FieldState `json:"item"`
	Label     FieldState `json:"label"`
	SKU       FieldState `json:"sku"`
	ProductID string     `json:"product_id,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	Focus     Field      `json:"focus"`
	Modal     *Feedback  `json:"modal,omitempty"`
	Toast     *Toast     `json:"toast,omitempty"`
	Saving    bool       `json:"saving"`
	// Saved holds between a successful save and the delayed reset.
	Saved       bool `json:"saved"`
	SaveEnabled bool `json:"save_enabled"`
}

func newScan() Scan {
	return Scan{
		Item:  FieldState{Status: StatusEmpty},
		Label: FieldState{Status: StatusEmpty},
		SKU:   FieldState{Status: StatusEmpty},
		Focus: FieldItem,
	}
}

// CanSave reports whether all three codes are verified and no save is
// running or waiting for its reset.
func (s *Scan) CanSave() bool {
	return s.Item.Status == StatusVerified &&
		s.Label.Status == StatusVerified &&
		s.SKU.Status == StatusVerified &&
		!s.Saving && !s.Saved
}

func (s *Scan) field(f Field) *FieldState {
	switch f {
	case FieldItem:
		return &s.Item
	case FieldLabel:
		return &s.Label
	default:
		return &s.SKU
	}
}

func (s Scan) snapshot() *Scan {
	if s.Modal != nil {
		m := *s.Modal
		s.Modal = &m
	}
	if s.Toast != nil {
		t := *s.Toast
		s.Toast = &t
	}
	s.SaveEnabled = s.CanSave()
	return &s
}

// Machine drives one operator's scan. Lookups run without holding the lock;
// their result is dropped when the field changed in the meantime.
type Machine struct {
	mu         sync.Mutex
	scan       Scan
	client     apiclient.Requester
	resetDelay time.Duration
	resetTimer *time.Timer
	now        func() time.Time
}

func NewMachine(client apiclient.Requester, resetDelay time.Duration) *Machine {
	return &Machine{
		scan:       newScan(),
		client:     client,
		resetDelay: resetDelay,
		now:        time.Now,
	}
}

func (m *Machine) Snapshot() *Scan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan.snapshot()
}

type product struct {
	ID       json.RawMessage `json:"id"`
	ImageURL string          `json:"imageurl"`
}

// Enter scans value into field and verifies it against the backend. Lookup
// failures are not returned as errors; they open the modal.
func (m *Machine) Enter(ctx context.Context, field Field, value string) (*Scan, error) {
	value = strings.TrimSpace(value)

	m.mu.Lock()
	if m.scan.Modal != nil {
		m.mu.Unlock()
		return nil, errcodes.Conflict("Acknowledge the scan error before scanning again.")
	}
	if m.scan.Saved {
		// Scanning the next parcel before the delayed reset fired.
		m.stopReset()
		m.scan = newScan()
	}
	fs := m.scan.field(field)
	*fs = Transition(*fs, Event{Kind: EventEntered, Value: value})
	m.scan.Toast = nil
	var itemCode, productID string
	switch field {
	case FieldItem:
		m.scan.ProductID = ""
		m.scan.ImageURL = ""
	case FieldLabel:
		productID = m.scan.ProductID
	case FieldSKU:
		if m.scan.Item.Status == StatusVerified {
			itemCode = m.scan.Item.Value
		}
	}
	m.mu.Unlock()

	var (
		p   *product
		msg string
		ok  bool
	)
	switch field {
	case FieldItem:
		p, msg, ok = m.lookupItem(ctx, value)
	case FieldLabel:
		msg, ok = m.lookupLabel(ctx, value, productID)
	case FieldSKU:
		p, msg, ok = m.lookupSKU(ctx, itemCode, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fs = m.scan.field(field)
	if fs.Status != StatusPending || fs.Value != value {
		return m.scan.snapshot(), nil
	}
	if !ok {
		*fs = Transition(*fs, Event{Kind: EventLookupFailed, Message: msg})
		m.scan.Modal = &Feedback{Sound: SoundError, Message: msg, Field: field}
		if field == FieldItem {
			m.scan.ProductID = ""
			m.scan.ImageURL = ""
		}
		logger.FromContext(ctx).Info("scan rejected", logger.Data{"field": field, "value": value, "reason": msg})
		return m.scan.snapshot(), nil
	}

	*fs = Transition(*fs, Event{Kind: EventLookupSucceeded, Message: msg})
	switch field {
	case FieldItem:
		m.scan.ProductID = idString(p.ID)
		m.scan.ImageURL = p.ImageURL
		m.scan.Focus = FieldLabel
	case FieldLabel:
		m.scan.Focus = FieldSKU
	case FieldSKU:
		if id := idString(p.ID); id != "" {
			m.scan.ProductID = id
		}
	}
	return m.scan.snapshot(), nil
}

func (m *Machine) lookupItem(ctx context.Context, code string) (*product, string, bool) {
	if code == "" {
		return nil, msgItemNotFound, false
	}
	p := &product{}
	if err := m.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/products/" + url.PathEscape(code)}, p); err != nil {
		return nil, msgItemNotFound, false
	}
	return p, msgItemVerified, true
}

// lookupLabel looks the label value up as a product and requires it to be
// the product the item code found.
func (m *Machine) lookupLabel(ctx context.Context, value, productID string) (string, bool) {
	if value == "" {
		return msgLabelNotFound, false
	}
	p := &product{}
	err := m.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/products/" + url.PathEscape(value)}, p)
	if err != nil {
		if apiclient.StatusCode(err) != 0 {
			return msgLabelNotFound, false
		}
		return msgLabelError, false
	}
	if idString(p.ID) != productID || productID == "" {
		return msgLabelMismatch, false
	}
	return msgLabelVerified, true
}

// lookupSKU needs a verified item code; without one it fails locally.
func (m *Machine) lookupSKU(ctx context.Context, itemCode, sku string) (*product, string, bool) {
	if itemCode == "" || sku == "" {
		return nil, msgSKUMismatch, false
	}
	p := &product{}
	path := fmt.Sprintf("/dispatch/%s/%s", url.PathEscape(itemCode), url.PathEscape(sku))
	if err := m.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path}, p); err != nil {
		return nil, msgSKUMismatch, false
	}
	return p, msgSKUVerified, true
}

// Acknowledge dismisses the modal, clearing and refocusing only the field it
// was about.
func (m *Machine) Acknowledge() *Scan {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scan.Modal == nil {
		return m.scan.snapshot()
	}
	if f := m.scan.Modal.Field; f != "" {
		fs := m.scan.field(f)
		*fs = Transition(*fs, Event{Kind: EventCleared})
		m.scan.Focus = f
	}
	m.scan.Modal = nil
	return m.scan.snapshot()
}

type saveRequest struct {
	ItemCode    string `json:"itemCode"`
	MRP         string `json:"mrp"`
	SKUCode     string `json:"skuCode"`
	CreatedDate string `json:"createdDate"`
}

// Save submits the verified scan. On success the form resets after the
// reset delay. On failure the fields stay as they are and saving is allowed
// again.
func (m *Machine) Save(ctx context.Context) (*Scan, error) {
	log := logger.FromContext(ctx)

	m.mu.Lock()
	if m.scan.Modal != nil {
		m.mu.Unlock()
		return nil, errcodes.Conflict("Acknowledge the scan error before saving.")
	}
	if !m.scan.CanSave() {
		m.mu.Unlock()
		return nil, errcodes.Conflict("All three codes must be verified before saving.")
	}
	body := saveRequest{
		ItemCode:    m.scan.Item.Value,
		MRP:         m.scan.Label.Value,
		SKUCode:     m.scan.SKU.Value,
		CreatedDate: m.now().UTC().Format(createdDateLayout),
	}
	m.scan.Saving = true
	m.scan.Toast = nil
	m.mu.Unlock()

	err := m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/dispatch/savedispatch",
		Body:   body,
	}, nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.scan.Saving = false

	switch {
	case err == nil:
		m.scan.Saved = true
		m.scan.Toast = &Toast{Success: true, Message: msgSaved}
		m.scheduleReset()
		log.Info("dispatch saved", logger.Data{"item_code": body.ItemCode, "sku_code": body.SKUCode})
	case errors.Is(err, apiclient.ErrUnauthenticated) || errors.Is(err, apiclient.ErrNoRefreshToken):
		m.scan.Modal = &Feedback{Sound: SoundError, Message: msgUnauthenticated}
		log.Warn("dispatch save without a session")
	default:
		msg := msgSaveFailed
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode != 0 && apiErr.Message != "" {
			msg = apiErr.Message
		}
		m.scan.Toast = &Toast{Message: msg}
		log.Err(err).Warn("dispatch save failed", logger.Data{"item_code": body.ItemCode})
	}
	return m.scan.snapshot(), nil
}

// scheduleReset and stopReset must be called with mu held.
func (m *Machine) scheduleReset() {
	m.stopReset()
	m.resetTimer = time.AfterFunc(m.resetDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.scan.Saved {
			m.scan = newScan()
		}
	})
}

// Reset clears the whole form and cancels a pending delayed reset.
func (m *Machine) Reset() *Scan {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopReset()
	m.scan = newScan()
	return m.scan.snapshot()
}

func (m *Machine) stopReset() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

// idString normalizes a JSON id so 5 and "5" compare equal.
func idString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
