package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewayflow/gatewayflow/types"
)

func TestHTTPSink_Write_PostsEventWithBearerAuth(t *testing.T) {
	var gotAuth string
	var gotEvent types.NormalizedEvent

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
		assert.Equal(t, "/events", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "sink-key", time.Second)
	err := sink.Write(context.Background(), types.NormalizedEvent{EventID: "evt-1", Project: "proj-1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sink-key", gotAuth)
	assert.Equal(t, "evt-1", gotEvent.EventID)
}

func TestHTTPSink_Write_ErrorsOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "sink-key", time.Second)
	err := sink.Write(context.Background(), types.NormalizedEvent{EventID: "evt-1"})
	assert.Error(t, err)
}
