package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
}

func (s staticTokens) AccessToken(context.Context) (string, error) {
	if s.token == "" {
		return "", apiclient.ErrUnauthenticated
	}
	return s.token, nil
}

func (s staticTokens) Refresh(context.Context) (string, error) {
	return "", apiclient.ErrNoRefreshToken
}

type fakeBackend struct {
	*httptest.Server
	mu       sync.Mutex
	products map[string]string
	skus     map[string]string
	saveErr  string
	saves    []map[string]string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		products: map[string]string{
			"FSN1":   `{"id":5,"imageurl":"https://img.example.com/5.png"}`,
			"LABEL5": `{"id":5}`,
			"LABEL6": `{"id":"6"}`,
		},
		skus: map[string]string{
			"FSN1/SKU1": `{"id":7}`,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{code}", func(w http.ResponseWriter, r *http.Request) {
		body, ok := fb.products[r.PathValue("code")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Product not found"}`))
			return
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("GET /dispatch/{item}/{sku}", func(w http.ResponseWriter, r *http.Request) {
		body, ok := fb.skus[r.PathValue("item")+"/"+r.PathValue("sku")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"SKU does not belong to product"}`))
			return
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("POST /dispatch/savedispatch", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.saveErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"` + fb.saveErr + `"}`))
			return
		}
		b, _ := io.ReadAll(r.Body)
		body := map[string]string{}
		_ = json.Unmarshal(b, &body)
		fb.saves = append(fb.saves, body)
		w.WriteHeader(http.StatusCreated)
	})
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func newTestMachine(t *testing.T, fb *fakeBackend, token string) *Machine {
	t.Helper()
	client := apiclient.New(fb.URL).WithTokens(staticTokens{token})
	m := NewMachine(client, 20*time.Millisecond)
	m.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }
	return m
}

func enter(t *testing.T, m *Machine, field Field, value string) *Scan {
	t.Helper()
	scan, err := m.Enter(context.Background(), field, value)
	require.NoError(t, err)
	return scan
}

func scanAll(t *testing.T, m *Machine) *Scan {
	t.Helper()
	enter(t, m, FieldItem, "FSN1")
	enter(t, m, FieldLabel, "LABEL5")
	return enter(t, m, FieldSKU, "SKU1")
}

func TestMachine_HappyPath(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")

	scan := enter(t, m, FieldItem, " FSN1 ")
	assert.Equal(t, StatusVerified, scan.Item.Status)
	assert.Equal(t, "FSN1", scan.Item.Value)
	assert.Equal(t, "ASN/FSN verified successfully", scan.Item.Message)
	assert.Equal(t, "5", scan.ProductID)
	assert.Equal(t, "https://img.example.com/5.png", scan.ImageURL)
	assert.Equal(t, FieldLabel, scan.Focus)
	assert.False(t, scan.SaveEnabled)

	scan = enter(t, m, FieldLabel, "LABEL5")
	assert.Equal(t, StatusVerified, scan.Label.Status)
	assert.Equal(t, FieldSKU, scan.Focus)
	assert.False(t, scan.SaveEnabled)

	scan = enter(t, m, FieldSKU, "SKU1")
	assert.Equal(t, StatusVerified, scan.SKU.Status)
	assert.Equal(t, "7", scan.ProductID)
	assert.True(t, scan.SaveEnabled)
	assert.Nil(t, scan.Modal)
}

func TestMachine_ItemNotFound(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")

	scan := enter(t, m, FieldItem, "NOPE")
	assert.Equal(t, StatusError, scan.Item.Status)
	require.NotNil(t, scan.Modal)
	assert.Equal(t, Feedback{Sound: SoundError, Message: "ASN/FSN not found", Field: FieldItem}, *scan.Modal)
	assert.Empty(t, scan.ProductID)

	_, err := m.Enter(context.Background(), FieldItem, "FSN1")
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, http.StatusConflict, ec.HTTPCode)

	scan = m.Acknowledge()
	assert.Nil(t, scan.Modal)
	assert.Equal(t, FieldState{Status: StatusEmpty}, scan.Item)
	assert.Equal(t, FieldItem, scan.Focus)
}

func TestMachine_LabelIDMismatch(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")

	enter(t, m, FieldItem, "FSN1")
	scan := enter(t, m, FieldLabel, "LABEL6")
	assert.Equal(t, StatusError, scan.Label.Status)
	require.NotNil(t, scan.Modal)
	assert.Equal(t, "ID mismatch", scan.Modal.Message)
	assert.Equal(t, FieldLabel, scan.Modal.Field)

	scan = m.Acknowledge()
	assert.Equal(t, StatusVerified, scan.Item.Status, "acknowledging leaves other fields alone")
	assert.Equal(t, StatusEmpty, scan.Label.Status)
	assert.Equal(t, FieldLabel, scan.Focus)
}

func TestMachine_LabelNotFound(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")

	enter(t, m, FieldItem, "FSN1")
	scan := enter(t, m, FieldLabel, "MISSING")
	require.NotNil(t, scan.Modal)
	assert.Equal(t, "MRP Label does not exist", scan.Modal.Message)
}

func TestMachine_SKURequiresVerifiedItem(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")

	scan := enter(t, m, FieldSKU, "SKU1")
	assert.Equal(t, StatusError, scan.SKU.Status)
	require.NotNil(t, scan.Modal)
	assert.Equal(t, "SKU code does not match", scan.Modal.Message)
}

func TestMachine_SKUErrorDisablesSave(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")

	scan := scanAll(t, m)
	require.True(t, scan.SaveEnabled)

	scan = enter(t, m, FieldSKU, "WRONG")
	assert.Equal(t, StatusVerified, scan.Item.Status)
	assert.Equal(t, StatusVerified, scan.Label.Status)
	assert.Equal(t, StatusError, scan.SKU.Status)
	assert.False(t, scan.SaveEnabled)

	_, err := m.Save(context.Background())
	assert.Error(t, err)
}

func TestMachine_SaveResetsAfterDelay(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")
	scanAll(t, m)

	scan, err := m.Save(context.Background())
	require.NoError(t, err)
	require.NotNil(t, scan.Toast)
	assert.True(t, scan.Toast.Success)
	assert.Equal(t, "Dispatch saved successfully", scan.Toast.Message)
	assert.False(t, scan.SaveEnabled, "no second save before the reset")
	assert.Equal(t, StatusVerified, scan.Item.Status)

	fb.mu.Lock()
	require.Len(t, fb.saves, 1)
	assert.Equal(t, map[string]string{
		"itemCode":    "FSN1",
		"mrp":         "LABEL5",
		"skuCode":     "SKU1",
		"createdDate": "2026-10-16T09:30:00.000Z",
	}, fb.saves[0])
	fb.mu.Unlock()

	assert.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.Item.Status == StatusEmpty && s.Label.Status == StatusEmpty && s.SKU.Status == StatusEmpty
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, FieldItem, m.Snapshot().Focus)
}

func TestMachine_SaveFailureKeepsFields(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	fb.saveErr = "Dispatch already exists"
	m := newTestMachine(t, fb, "access")
	scanAll(t, m)

	scan, err := m.Save(context.Background())
	require.NoError(t, err)
	require.NotNil(t, scan.Toast)
	assert.False(t, scan.Toast.Success)
	assert.Equal(t, "Dispatch already exists", scan.Toast.Message)
	assert.Equal(t, StatusVerified, scan.SKU.Status)
	assert.True(t, scan.SaveEnabled)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StatusVerified, m.Snapshot().Item.Status)
}

func TestMachine_SaveWithoutToken(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")
	scanAll(t, m)
	m.client = apiclient.New(fb.URL).WithTokens(staticTokens{})

	scan, err := m.Save(context.Background())
	require.NoError(t, err)
	require.NotNil(t, scan.Modal)
	assert.Equal(t, "User not authenticated", scan.Modal.Message)
	assert.Empty(t, scan.Modal.Field)
	assert.Empty(t, fb.saves)

	scan = m.Acknowledge()
	assert.Equal(t, StatusVerified, scan.SKU.Status)
}

func TestMachine_ScanningDuringResetWindow(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")
	m.resetDelay = time.Hour
	scanAll(t, m)
	_, err := m.Save(context.Background())
	require.NoError(t, err)

	scan := enter(t, m, FieldItem, "FSN1")
	assert.Equal(t, StatusVerified, scan.Item.Status)
	assert.Equal(t, StatusEmpty, scan.Label.Status)
	assert.False(t, scan.Saved)
}

func TestMachine_Reset(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	m := newTestMachine(t, fb, "access")
	scanAll(t, m)

	scan := m.Reset()
	assert.Equal(t, StatusEmpty, scan.Item.Status)
	assert.Empty(t, scan.ProductID)
	assert.False(t, scan.SaveEnabled)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(time.Second, 0)
	client := apiclient.New("http://127.0.0.1:0")

	a := r.For("a", client)
	assert.Same(t, a, r.For("a", client))
	assert.NotSame(t, a, r.For("b", client))

	r.Drop("a")
	assert.NotSame(t, a, r.For("a", client))
}

func TestRegistry_SweepsIdleMachines(t *testing.T) {
	t.Parallel()
	r := NewRegistry(time.Second, time.Hour)
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	client := apiclient.New("http://127.0.0.1:0")

	idle := r.For("idle", client)
	busy := r.For("busy", client)
	require.Equal(t, 2, r.Len())

	now = now.Add(45 * time.Minute)
	assert.Same(t, busy, r.For("busy", client))

	now = now.Add(30 * time.Minute)
	assert.Same(t, busy, r.For("busy", client))
	assert.Equal(t, 1, r.Len(), "the idle machine is swept")
	assert.NotSame(t, idle, r.For("idle", client))
}
