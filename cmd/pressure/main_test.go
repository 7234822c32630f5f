package main

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/pressure.report/internal/config"
	"github.com/banshee-data/pressure.report/internal/sensor"
	"github.com/banshee-data/pressure.report/internal/serialmux"
	"github.com/banshee-data/pressure.report/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixturesDecode(t *testing.T) {
	lines := serialmux.ParseFixture(fixtures)
	require.NotEmpty(t, lines)

	var bad int
	for _, line := range lines {
		if _, err := sensor.Decode(line); err != nil {
			var decErr *sensor.DecodeError
			require.True(t, errors.As(err, &decErr), line)
			bad++
		}
	}
	// one malformed line exercises the drop path in dev mode
	assert.Equal(t, 1, bad)
}

func TestEngineOptionsDefaults(t *testing.T) {
	opts, err := engineOptions(config.EmptyConfig())
	require.NoError(t, err)

	assert.Equal(t, 640, opts.Width)
	assert.Equal(t, 480, opts.Height)
	assert.Equal(t, 500*time.Millisecond, opts.TickInterval)
	assert.Equal(t, session.ModeCamera, opts.InitialMode)
	assert.Equal(t, 1000, opts.Ledger.Capacity())
	assert.Equal(t, 5*time.Second, opts.Ledger.Window())
	assert.InDelta(t, 5.0, opts.Mapper.Threshold(), 1e-9)
	assert.Equal(t, 3, opts.ZoneCount)
	assert.True(t, opts.Annotate)
	require.NotNil(t, opts.Compositor)
	assert.InDelta(t, 0.7, opts.Compositor.BackgroundWeight, 1e-9)
}

func TestEngineOptionsFromConfig(t *testing.T) {
	mode := config.ModeFlat
	ramp := "black-body"
	window := "2s"
	cfg := &config.Config{InitialMode: &mode, ColorMap: &ramp, Window: &window}

	opts, err := engineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, session.ModeFlat, opts.InitialMode)
	assert.Equal(t, 2*time.Second, opts.Ledger.Window())
}

func TestEngineOptionsRejectsUnknownRamp(t *testing.T) {
	ramp := "rainbow-unicorn"
	_, err := engineOptions(&config.Config{ColorMap: &ramp})
	assert.Error(t, err)
}

func TestLinkRecordsCloseClosesLink(t *testing.T) {
	link := serialmux.NewMockSerialMux([]string{"Step:1,Volt:6,Dir:LEFT"}, time.Hour)
	records := linkRecords{LineSource: serialmux.NewLineSource(link), link: link}

	require.NoError(t, records.Close())
	assert.Equal(t, 0, link.Stats().Subscribers)
	_, ok := records.TryNext()
	assert.False(t, ok)
}
