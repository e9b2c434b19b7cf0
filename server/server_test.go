package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteo/logger"
	"meteo/manager"
)

type stubWeather struct {
	reports map[string]manager.Report
}

func (s stubWeather) Get(ctx context.Context, query manager.Query) (manager.Report, error) {
	switch query.City {
	case "":
		return manager.Report{}, manager.NewFailure(manager.InvalidInput, errors.New("bad url"))
	case "offline":
		return manager.Report{}, manager.NewFailure(manager.NetworkError, errors.New("connection refused"))
	}
	if report, ok := s.reports[query.City]; ok {
		return report, nil
	}
	return manager.Report{}, manager.NewFailure(manager.DecodeError, errors.New(`missing "main"`))
}

func newTestServer(t *testing.T) (*httptest.Server, *manager.State) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	state := manager.NewState()
	go state.Run(ctx)

	service := manager.New(stubWeather{reports: map[string]manager.Report{
		"Paris": {Description: "Ciel Dégagé", TemperatureCelsius: 21},
		"Lyon":  {Description: "Pluie Légère", TemperatureCelsius: 12},
	}})
	service.SetState(state)

	ts := httptest.NewServer(NewHandler(service, state, logger.NewNop()).Routes())
	t.Cleanup(ts.Close)
	return ts, state
}

func getOutcome(t *testing.T, url string) (int, outcomeView) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var view outcomeView
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	}
	return resp.StatusCode, view
}

func TestGetWeather(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("Success", func(t *testing.T) {
		status, view := getOutcome(t, ts.URL+"/api/weather?city=Paris")

		assert.Equal(t, http.StatusOK, status)
		assert.True(t, view.OK)
		assert.Equal(t, "Paris", view.City)
		require.NotNil(t, view.Report)
		assert.Equal(t, "Ciel Dégagé", view.Report.Description)
		assert.Equal(t, 21, view.Report.TemperatureCelsius)
		assert.Nil(t, view.Failure)
	})

	t.Run("Failures", func(t *testing.T) {
		cases := []struct {
			city    string
			status  int
			kind    string
			message string
		}{
			{"", http.StatusBadRequest, "invalid_input", "URL invalide"},
			{"offline", http.StatusBadGateway, "network_error", "Erreur réseau : connection refused"},
			{"Atlantis", http.StatusNotFound, "decode_error", "Ville non trouvée ou problème de décodage"},
		}
		for _, tc := range cases {
			status, view := getOutcome(t, ts.URL+"/api/weather?city="+tc.city)

			assert.Equal(t, tc.status, status, tc.city)
			assert.False(t, view.OK)
			require.NotNil(t, view.Failure, tc.city)
			assert.Equal(t, tc.kind, view.Failure.Kind)
			assert.Equal(t, tc.message, view.Failure.Message)
		}
	})

	t.Run("DoesNotTouchState", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/outcome")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestSearch(t *testing.T) {
	ts, state := newTestServer(t)

	updates, release := state.Subscribe()
	defer release()

	t.Run("Dispatches", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader(`{"city":"Lyon"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotEmpty(t, body["id"])

		select {
		case outcome := <-updates:
			assert.Equal(t, body["id"], outcome.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("search outcome not applied")
		}

		status, view := getOutcome(t, ts.URL+"/api/outcome")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, body["id"], view.ID)
		assert.Equal(t, 12, view.Report.TemperatureCelsius)
	})

	t.Run("BadBody", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader(`{`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStream(t *testing.T) {
	ts, state := newTestServer(t)

	require.True(t, state.Apply(manager.Outcome{
		ID:      "first",
		City:    "Paris",
		Failure: manager.NewFailure(manager.EmptyResponse, nil),
	}))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	msg := read()
	assert.Equal(t, MessageTypeOutcome, msg.Type)
	assert.Equal(t, "first", msg.Data.ID)
	require.NotNil(t, msg.Data.Failure)
	assert.Equal(t, "Pas de données reçues", msg.Data.Failure.Message)

	resp, err := http.Post(ts.URL+"/api/search", "application/json", strings.NewReader(`{"city":"Paris"}`))
	require.NoError(t, err)
	resp.Body.Close()

	msg = read()
	assert.True(t, msg.Data.OK)
	assert.Equal(t, "Ciel Dégagé", msg.Data.Report.Description)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
