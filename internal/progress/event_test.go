package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := Event{
		SessionID:   UUIDToBytes(uuid.New()),
		TS:          time.Now(),
		Stage:       StageFetchDone,
		Site:        "example.com",
		StatusClass: Status2xx,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(e *Event){
		"missing session id":  func(e *Event) { e.SessionID = [16]byte{} },
		"missing timestamp":   func(e *Event) { e.TS = time.Time{} },
		"unknown stage":       func(e *Event) { e.Stage = "SOMETHING_ELSE" },
		"fetch without site":  func(e *Event) { e.Site = "" },
		"fetch without class": func(e *Event) { e.StatusClass = "" },
		"negative duration":   func(e *Event) { e.Dur = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			evt := valid
			mutate(&evt)
			assert.Error(t, evt.Validate())
		})
	}
}

func TestSessionEventsNeedNoSite(t *testing.T) {
	t.Parallel()

	evt := Event{
		SessionID: UUIDToBytes(uuid.New()),
		TS:        time.Now(),
		Stage:     StageSessionHeartbeat,
	}
	assert.NoError(t, evt.Validate())
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Status2xx, ClassifyStatus(200))
	assert.Equal(t, Status3xx, ClassifyStatus(301))
	assert.Equal(t, Status4xx, ClassifyStatus(404))
	assert.Equal(t, Status5xx, ClassifyStatus(503))
	assert.Equal(t, StatusOther, ClassifyStatus(0))
	assert.Equal(t, StatusOther, ClassifyStatus(700))
}

func TestSessionUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{SessionID: UUIDToBytes(id)}
	assert.Equal(t, id, evt.SessionUUID())
}
