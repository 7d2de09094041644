package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("reservation_id", 7).Info("reservation created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reservation created", entry["msg"])
	assert.EqualValues(t, 7, entry["reservation_id"])
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithOutput(&buf, "warn", "text")
	require.NoError(t, err)

	log.Info("hidden")
	assert.Empty(t, buf.String())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New("loud", "text")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}
