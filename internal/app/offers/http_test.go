package offers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printfarm-system/internal/app/offers"
	"printfarm-system/internal/common/logger"
	"printfarm-system/internal/dispatch"
	"printfarm-system/internal/domain"
)

// autoFarmer accepts or declines every offer it sees after a small delay;
// nil decision means silence.
type autoFarmer struct {
	mu       sync.Mutex
	d        *dispatch.Dispatcher
	decision map[string]bool
}

func (f *autoFarmer) SendOffer(_ context.Context, farmerID string, order domain.OrderDescriptor) error {
	f.mu.Lock()
	accepted, ok := f.decision[farmerID]
	d := f.d
	f.mu.Unlock()
	if ok {
		go func() {
			time.Sleep(2 * time.Millisecond)
			_ = d.SubmitResponse(order.OrderID, farmerID, accepted)
		}()
	}
	return nil
}

func newTestMux(decision map[string]bool, offerTimeout time.Duration) (*http.ServeMux, *dispatch.Dispatcher) {
	lg := logger.NewWithWriter("test", io.Discard)
	farmer := &autoFarmer{decision: decision}
	d := dispatch.New(lg, farmer, nil, nil, offerTimeout)
	farmer.d = d
	h := offers.NewHandler(lg, d, nil)
	return h.Routes(), d
}

func startBody(orderID string, farmers ...string) []byte {
	req := map[string]any{
		"order": map[string]any{"order_id": orderID, "city": "Lyon", "material_type": "PLA"},
	}
	cs := make([]map[string]any, len(farmers))
	for i, f := range farmers {
		cs[i] = map[string]any{"farmer_id": f, "match_score": 0.9}
	}
	req["candidates"] = cs
	b, _ := json.Marshal(req)
	return b
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	var payload map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	}
	return rr, payload
}

func TestStartAssigned(t *testing.T) {
	mux, _ := newTestMux(map[string]bool{"farmer-a": true}, time.Second)

	rr, payload := doJSON(t, mux, http.MethodPost, "/sequential-offers/start", startBody("ord-1", "farmer-a"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "assigned", payload["status"])
	assert.Equal(t, "farmer-a", payload["farmer_id"])
}

func TestStartNoFarmerAccepted(t *testing.T) {
	mux, _ := newTestMux(map[string]bool{"farmer-a": false, "farmer-b": false}, time.Second)

	rr, payload := doJSON(t, mux, http.MethodPost, "/sequential-offers/start", startBody("ord-1", "farmer-a", "farmer-b"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no_farmer_accepted", payload["status"])
}

func TestStartNoCandidates(t *testing.T) {
	mux, _ := newTestMux(nil, time.Second)

	rr, payload := doJSON(t, mux, http.MethodPost, "/sequential-offers/start", startBody("ord-1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no_candidates", payload["status"])
}

func TestStartBadJSON(t *testing.T) {
	mux, _ := newTestMux(nil, time.Second)

	rr, _ := doJSON(t, mux, http.MethodPost, "/sequential-offers/start", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStartMissingOrderID(t *testing.T) {
	mux, _ := newTestMux(nil, time.Second)

	rr, _ := doJSON(t, mux, http.MethodPost, "/sequential-offers/start", startBody("", "farmer-a"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStartDuplicateConflictAndCancel(t *testing.T) {
	mux, d := newTestMux(nil, 5*time.Second) // silent farmers, long window

	type result struct {
		code    int
		payload map[string]any
	}
	first := make(chan result, 1)
	go func() {
		rr, payload := doJSON(t, mux, http.MethodPost, "/sequential-offers/start", startBody("ord-1", "farmer-a"))
		first <- result{rr.Code, payload}
	}()

	require.Eventually(t, func() bool {
		_, ok := d.Status("ord-1")
		return ok
	}, time.Second, 2*time.Millisecond)

	rr, _ := doJSON(t, mux, http.MethodPost, "/sequential-offers/start", startBody("ord-1", "farmer-b"))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, payload := doJSON(t, mux, http.MethodDelete, "/sequential-offers/ord-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, payload["cancelled"])

	res := <-first
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "cancelled", res.payload["status"])
}

func TestResponseEndpointAlwaysAcks(t *testing.T) {
	mux, _ := newTestMux(nil, time.Second)

	// No session is active; the stale response is dropped internally but the
	// transport-facing contract is a 200 ack.
	body, _ := json.Marshal(domain.OfferResponseMessage{OrderID: "ord-9", FarmerID: "farmer-a", Accepted: true})
	rr, payload := doJSON(t, mux, http.MethodPost, "/sequential-offers/response", body)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, payload["acknowledged"])
}

func TestResponseMissingIDs(t *testing.T) {
	mux, _ := newTestMux(nil, time.Second)

	rr, _ := doJSON(t, mux, http.MethodPost, "/sequential-offers/response", []byte(`{"accepted":true}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCancelNotFound(t *testing.T) {
	mux, _ := newTestMux(nil, time.Second)

	rr, _ := doJSON(t, mux, http.MethodDelete, "/sequential-offers/ord-404", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusAndActive(t *testing.T) {
	mux, d := newTestMux(nil, 5*time.Second)

	done := make(chan struct{})
	go func() {
		_, _ = doJSON(t, mux, http.MethodPost, "/sequential-offers/start", startBody("ord-1", "farmer-a", "farmer-b"))
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := d.Status("ord-1")
		return ok
	}, time.Second, 2*time.Millisecond)

	rr, payload := doJSON(t, mux, http.MethodGet, "/sequential-offers/ord-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ord-1", payload["order_id"])
	assert.Equal(t, float64(2), payload["candidate_count"])

	rr, payload = doJSON(t, mux, http.MethodGet, "/sequential-offers/active", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	sessions, ok := payload["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 1)

	require.True(t, d.Cancel("ord-1"))
	<-done

	rr, _ = doJSON(t, mux, http.MethodGet, "/sequential-offers/ord-1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFinishedWithoutAuditStorage(t *testing.T) {
	mux, _ := newTestMux(nil, time.Second)

	rr, _ := doJSON(t, mux, http.MethodGet, "/sequential-offers/finished", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConcurrentStartsDifferentOrders(t *testing.T) {
	mux, _ := newTestMux(map[string]bool{"farmer-a": true}, time.Second)

	var wg sync.WaitGroup
	codes := make([]int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr, payload := doJSON(t, mux, http.MethodPost, "/sequential-offers/start",
				startBody(fmt.Sprintf("ord-%d", i), "farmer-a"))
			codes[i] = rr.Code
			assert.Equal(t, "assigned", payload["status"])
		}(i)
	}
	wg.Wait()
	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}
