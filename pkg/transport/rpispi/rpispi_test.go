package rpispi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/sd-card/pkg/sdspi"
	"github.com/gregLibert/sd-card/pkg/simcard"
)

// fakePin records the level it was last driven to.
type fakePin struct {
	output bool
	high   bool
	edges  []bool
	onEdge func(high bool)
}

func (p *fakePin) Output() { p.output = true }

func (p *fakePin) High() { p.set(true) }

func (p *fakePin) Low() { p.set(false) }

func (p *fakePin) set(high bool) {
	p.high = high
	p.edges = append(p.edges, high)
	if p.onEdge != nil {
		p.onEdge(high)
	}
}

// wired builds a transport whose SPI lines are connected to a simulated card.
func wired(t *testing.T, sim *simcard.Card, power *fakePin) (*Transport, *fakePin) {
	t.Helper()
	cs := &fakePin{onEdge: func(high bool) {
		if high {
			_ = sim.Deselect()
		} else {
			_ = sim.Select()
		}
	}}
	tr := &Transport{
		cs: cs,
		exchange: func(p []byte) {
			for i, b := range p {
				p[i], _ = sim.Exchange(b)
			}
		},
		release: func() error { return nil },
	}
	if power != nil {
		tr.power = power
	}
	tr.setup()
	return tr, cs
}

func TestTransport_Setup(t *testing.T) {
	power := &fakePin{}
	_, cs := wired(t, simcard.New(), power)

	assert.True(t, cs.output)
	assert.True(t, cs.high, "card must start deselected")
	assert.True(t, power.output)
	assert.False(t, power.high, "supply stays off until PowerOn")
}

func TestTransport_ChipSelect(t *testing.T) {
	tr, cs := wired(t, simcard.New(), nil)

	require.NoError(t, tr.Select())
	assert.False(t, cs.high)
	require.NoError(t, tr.Deselect())
	assert.True(t, cs.high)
	assert.Equal(t, []bool{true, false, true}, cs.edges)

	// no supply pin: nothing to do
	assert.NoError(t, tr.PowerOn())
}

func TestTransport_Exchange(t *testing.T) {
	var seen []byte
	tr := &Transport{
		cs: &fakePin{},
		exchange: func(p []byte) {
			seen = append(seen, p...)
			p[0] = ^p[0]
		},
		release: func() error { return nil },
	}

	rx, err := tr.Exchange(0x40)
	require.NoError(t, err)
	assert.Equal(t, byte(0xBF), rx)
	assert.Equal(t, []byte{0x40}, seen)
}

func TestTransport_Closed(t *testing.T) {
	releases := 0
	tr := &Transport{
		cs:       &fakePin{},
		exchange: func([]byte) {},
		release: func() error {
			releases++
			return errors.New("unmap failed")
		},
	}

	assert.Error(t, tr.Close())
	assert.NoError(t, tr.Close(), "second Close is a no-op")
	assert.Equal(t, 1, releases)

	_, err := tr.Exchange(0xFF)
	assert.ErrorIs(t, err, errClosed)
	assert.ErrorIs(t, tr.Select(), errClosed)
	assert.ErrorIs(t, tr.Deselect(), errClosed)
	assert.ErrorIs(t, tr.PowerOn(), errClosed)
}

func TestTransport_DrivesCard(t *testing.T) {
	sim := simcard.New()
	power := &fakePin{}
	tr, cs := wired(t, sim, power)

	card := sdspi.NewCard(tr)
	require.NoError(t, card.Init())
	assert.True(t, power.high)
	assert.True(t, cs.high)

	var blk sdspi.Block
	copy(blk[:], "raspberry")
	require.NoError(t, card.WriteBlock(9, &blk))

	var got sdspi.Block
	require.NoError(t, card.ReadBlock(9, &got))
	assert.Equal(t, blk, got)
}

func TestOpen_RequiresChipSelect(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
