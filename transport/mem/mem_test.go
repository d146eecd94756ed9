package mem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_RecordsGatherWrite(t *testing.T) {
	tr := New(false)
	done := make(chan error, 1)
	tr.Write(func(err error) { done <- err }, [][]byte{[]byte("ab"), []byte("cde")})
	require.NoError(t, <-done)

	writes := tr.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "abcde", string(writes[0].Bytes))
	assert.Equal(t, []int{2, 3}, writes[0].GatherLens)
}

func TestTransport_FailNextWrites(t *testing.T) {
	tr := New(false)
	tr.FailNextWrites(2, ErrInjected)

	for i := 0; i < 2; i++ {
		done := make(chan error, 1)
		tr.Write(func(err error) { done <- err }, [][]byte{[]byte("x")})
		assert.ErrorIs(t, <-done, ErrInjected)
	}

	done := make(chan error, 1)
	tr.Write(func(err error) { done <- err }, [][]byte{[]byte("ok")})
	require.NoError(t, <-done)

	writes := tr.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "ok", string(writes[0].Bytes))
}

func TestTransport_AsyncCompletesOnGoroutine(t *testing.T) {
	tr := New(true)
	done := make(chan error, 1)
	tr.Write(func(err error) { done <- err }, [][]byte{[]byte("go")})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("async write never completed")
	}
}
