package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitpoints/pkg/logger"
)

type countingProber struct {
	calls atomic.Int32
}

func (p *countingProber) ProbeAndTransition(ctx context.Context) {
	p.calls.Add(1)
}

type staticExporter struct {
	data string
	err  error
}

func (e staticExporter) ExportData() (string, error) {
	return e.data, e.err
}

type memorySink struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (m *memorySink) Put(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}

func (m *memorySink) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[name]
	return data, ok
}

func TestArchiveSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		exporter staticExporter
		sinkErr  error
		wantErr  bool
	}{
		{name: "writes export under dated name", exporter: staticExporter{data: `{"children":[]}`}},
		{name: "export failure", exporter: staticExporter{err: errors.New("boom")}, wantErr: true},
		{name: "sink failure", exporter: staticExporter{data: "{}"}, sinkErr: errors.New("disk full"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{err: tt.sinkErr}
			location, err := ArchiveSnapshot(context.Background(), tt.exporter, sink, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "mem://habits-data-2024-03-01.json", location)
			data, ok := sink.get("habits-data-2024-03-01.json")
			require.True(t, ok)
			assert.Equal(t, tt.exporter.data, string(data))
		})
	}
}

func TestSchedulerRunsJobs(t *testing.T) {
	s, err := New(logger.Discard())
	require.NoError(t, err)

	prober := &countingProber{}
	sink := &memorySink{}
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.AddProbeJob(prober, 20*time.Millisecond))
	require.NoError(t, s.AddArchiveJob(staticExporter{data: `{"records":[]}`}, sink, time.Hour))

	s.Start()
	defer func() { require.NoError(t, s.Shutdown()) }()

	require.Eventually(t, func() bool {
		_, ok := sink.get("habits-data-2024-03-01.json")
		return ok
	}, 2*time.Second, 10*time.Millisecond, "archive job runs immediately")

	require.Eventually(t, func() bool {
		return prober.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond, "probe job repeats")
}
