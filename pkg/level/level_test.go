package level

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsAlwaysPresent(t *testing.T) {
	r := NewRegistry()

	for name, no := range map[string]uint16{
		"TRACE": 5, "DEBUG": 10, "INFO": 20, "SUCCESS": 25,
		"WARNING": 30, "ERROR": 40, "FAIL": 45, "CRITICAL": 50,
	} {
		l, ok := r.ByName(name)
		require.True(t, ok, "missing built-in %s", name)
		assert.Equal(t, no, l.No)

		byNo, ok := r.ByNo(no)
		require.True(t, ok)
		assert.Equal(t, name, byNo.Name)
	}
	assert.Equal(t, TraceNo, r.Min())
}

func TestRegisterCustomLevel(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("NOTICE", 22, "<cyan>", ""))
	l, ok := r.ByName("NOTICE")
	require.True(t, ok)
	assert.Equal(t, uint16(22), l.No)
	assert.Equal(t, "<cyan>", l.Color)
}

func TestRegisterIdempotentSamePair(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("NOTICE", 22, "<cyan>", ""))
	require.NoError(t, r.Register("NOTICE", 22, "<red>", ""))

	// The original color survives a repeated registration.
	l, _ := r.ByName("NOTICE")
	assert.Equal(t, "<cyan>", l.Color)
}

func TestRegisterConflicts(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register("INFO", 21, "", ""), "renumbering an existing name must fail")
	assert.Error(t, r.Register("VERBOSE", 20, "", ""), "reusing a number must fail")
	assert.Error(t, r.Register("", 3, "", ""))
}

func TestMinTracksLowestRegistration(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("WIRE", 2, "", ""))
	assert.Equal(t, uint16(2), r.Min())
}

func TestConcurrentLookupDuringRegistration(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if _, ok := r.ByName("INFO"); !ok {
					t.Error("INFO disappeared during registration")
					return
				}
			}
		}
	}()

	for i := uint16(100); i < 200; i++ {
		require.NoError(t, r.Register(fmt.Sprintf("L%d", i), i, "", ""))
	}
	close(stop)
	wg.Wait()
}
