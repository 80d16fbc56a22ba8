package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRollForwardAdvancesEpoch(t *testing.T) {
	c := NewCoordinator()
	require.Equal(t, Epoch(1), c.Current())

	g := c.Acquire()
	require.Equal(t, Epoch(1), g.Epoch())

	donePrev, vacantPrev, doneFwd := c.RollForward()
	require.Equal(t, Epoch(2), c.Current())

	select {
	case <-donePrev:
	default:
		t.Fatal("donePrev should already be closed for the first ever flush")
	}

	// vacantPrev must block until the epoch-1 guard is released.
	done := make(chan Epoch, 1)
	go func() { done <- vacantPrev() }()
	select {
	case <-done:
		t.Fatal("vacantPrev returned before the outstanding guard was released")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release()
	select {
	case e := <-done:
		require.Equal(t, Epoch(1), e)
	case <-time.After(time.Second):
		t.Fatal("vacantPrev never unblocked after guard release")
	}
	doneFwd()
}

func TestNoDirtyLagNewGuardsGetNextEpoch(t *testing.T) {
	c := NewCoordinator()
	_, _, doneFwd := c.RollForward()
	doneFwd()

	g := c.Acquire()
	require.Equal(t, Epoch(2), g.Epoch())
	g.Release()
}

func TestSecondFlushWaitsOnFirst(t *testing.T) {
	c := NewCoordinator()
	_, vacant1, doneFwd1 := c.RollForward()
	vacant1() // epoch 1 had no guards, returns immediately

	donePrev2, _, _ := c.RollForward()
	select {
	case <-donePrev2:
		t.Fatal("second flush's donePrev should wait for the first flush's doneFwd")
	default:
	}
	doneFwd1()
	select {
	case <-donePrev2:
	case <-time.After(time.Second):
		t.Fatal("donePrev2 never closed after first flush completed")
	}
}
