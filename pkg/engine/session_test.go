package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConnectAllKeepsOrder(t *testing.T) {
	a := &fakeConn{name: "a"}
	b := &fakeConn{name: "b", connectErr: errors.New("refused")}
	c := &fakeConn{name: "c"}

	results := connectAll(context.Background(), []Connection{a, b, c}, zap.NewNop(), nil)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Conn.Name())
	assert.NoError(t, results[0].Err)
	assert.EqualError(t, results[1].Err, "refused")
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 1, a.connects)
	assert.Equal(t, 1, b.connects)
	assert.Equal(t, 1, c.connects)
}

func TestSessionLive(t *testing.T) {
	a := &fakeConn{name: "a"}
	b := &fakeConn{name: "b"}
	s := &Session{
		results: []ConnectResult{{Conn: a, Err: errors.New("x")}, {Conn: b}},
		logger:  zap.NewNop(),
	}

	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "b", live[0].Name())
}

func TestSessionCloseOnce(t *testing.T) {
	a := &fakeConn{name: "a", closeErr: errors.New("a stuck")}
	b := &fakeConn{name: "b", connectErr: errors.New("never connected")}
	c := &fakeConn{name: "c", closeErr: errors.New("c stuck")}

	core, logs := observer.New(zap.WarnLevel)
	s := &Session{
		results: []ConnectResult{{Conn: a}, {Conn: b, Err: b.connectErr}, {Conn: c}},
		logger:  zap.New(core),
	}

	err := s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a stuck")
	assert.Contains(t, err.Error(), "c stuck")

	assert.Equal(t, err, s.Close())
	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, b.closes)
	assert.Equal(t, 1, c.closes)
	assert.Equal(t, 2, logs.FilterMessage("close failed").Len())
}

func TestSessionUsage(t *testing.T) {
	s := &Session{}
	assert.Equal(t, modeladapter.TokenCount{}, s.Usage())

	tr := &modeladapter.Tracker{}
	tr.Add(modeladapter.TokenCount{InputTokens: 10, OutputTokens: 4})
	tr.Add(modeladapter.TokenCount{InputTokens: 5, OutputTokens: 1})
	s.usage = tr
	assert.Equal(t, modeladapter.TokenCount{InputTokens: 15, OutputTokens: 5}, s.Usage())
}
