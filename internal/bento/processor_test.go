package bento

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benthosdev/benthos/v4/public/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/events"
)

type stubAnalyzer struct {
	blocks []uint64
	err    error
}

func (s *stubAnalyzer) AnalyzeBlock(_ context.Context, n uint64) (*events.AnalysisReport, error) {
	s.blocks = append(s.blocks, n)
	if s.err != nil {
		return nil, s.err
	}
	res := &detector.Result{
		BlockNumber: n,
		Suspicious:  []detector.SuspiciousTransaction{{TxHash: "0xaa", PossibleAttack: true, SuspectedFlashLoan: true}},
	}
	return events.NewAnalysisReport(res, time.Now(), 0), nil
}

func TestBlockNumberFromPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    uint64
		ok      bool
	}{
		{`14684307`, 14684307, true},
		{`"14684307"`, 14684307, true},
		{`{"blockNumber": 13118320}`, 13118320, true},
		{`{"block_number": "13499798"}`, 13499798, true},
		{`{"number": "0xdecf26"}`, 14602022, true},
		{`"0x00decf26"`, 14602022, true},
		{`"0x0"`, 0, false},
		{`{"hash": "0xabc"}`, 0, false},
		{`hello`, 0, false},
		{`0`, 0, false},
	}
	for _, tt := range tests {
		got, err := blockNumberFromPayload([]byte(tt.payload))
		if !tt.ok {
			assert.ErrorIs(t, err, detector.ErrInvalidInput, tt.payload)
			continue
		}
		require.NoError(t, err, tt.payload)
		assert.Equal(t, tt.want, got, tt.payload)
	}
}

func TestDetectProcessor_Process(t *testing.T) {
	stub := &stubAnalyzer{}
	p := newDetectProcessor(stub, service.MockResources().Logger())

	batch, err := p.Process(context.Background(), service.NewMessage([]byte(`{"blockNumber": 14684307}`)))
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, []uint64{14684307}, stub.blocks)

	raw, err := batch[0].AsBytes()
	require.NoError(t, err)
	report, err := events.UnmarshalReport(raw)
	require.NoError(t, err)
	assert.True(t, report.DetectedSuspiciousActivity)
	assert.Equal(t, uint64(14684307), report.BlockNumber)

	v, ok := batch[0].MetaGetMut("flashloan_detected")
	require.True(t, ok)
	assert.Equal(t, true, v)
	block, ok := batch[0].MetaGet("block_number")
	require.True(t, ok)
	assert.Equal(t, "14684307", block)

	require.NoError(t, p.Close(context.Background()))
}

func TestDetectProcessor_Errors(t *testing.T) {
	p := newDetectProcessor(&stubAnalyzer{}, nil)
	_, err := p.Process(context.Background(), service.NewMessage([]byte(`{"foo": 1}`)))
	assert.ErrorIs(t, err, detector.ErrInvalidInput)

	failing := &stubAnalyzer{err: &detector.AnalysisFailure{BlockNumber: 9, Err: errors.New("rpc down")}}
	p = newDetectProcessor(failing, nil)
	_, err = p.Process(context.Background(), service.NewMessage([]byte(`9`)))
	var af *detector.AnalysisFailure
	assert.True(t, errors.As(err, &af))
}

func TestDetectProcessor_CloseReleasesProviderOnce(t *testing.T) {
	closed := 0
	p := newDetectProcessor(&stubAnalyzer{}, nil)
	p.onClose = func() { closed++ }

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 1, closed)
}

func TestBuildAnalyzer_ReturnsProviderCloser(t *testing.T) {
	analyzer, closeRPC, err := buildAnalyzer(context.Background(), settings{
		rpcURL:         "http://127.0.0.1:8545",
		policy:         detector.FailFast,
		requestTimeout: time.Second,
		cacheTTL:       time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, analyzer)
	require.NotNil(t, closeRPC)
	closeRPC()

	_, _, err = buildAnalyzer(context.Background(), settings{})
	assert.Error(t, err)
}

func TestParseSettings(t *testing.T) {
	conf, err := configSpec().ParseYAML(`
rpc_url: http://localhost:8545
failure_policy: isolate
lookup_concurrency: 4
`, nil)
	require.NoError(t, err)

	s, err := parseSettings(conf)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", s.rpcURL)
	assert.Equal(t, detector.IsolateLookups, s.policy)
	assert.Equal(t, 4, s.lookupConcurrency)
	assert.Equal(t, 3, s.maxRetries)
	assert.Equal(t, 10*time.Second, s.requestTimeout)
	assert.Equal(t, time.Hour, s.cacheTTL)
}
