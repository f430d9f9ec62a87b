package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteBufferPool_ResetsBetweenUses(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("leftover")
	ByteBufferPool.Put(buf)

	buf2 := ByteBufferPool.Get()
	assert.Equal(t, 0, buf2.Len())
}

func TestSlicePool_ResetsLengthOnPut(t *testing.T) {
	p := NewSlicePool[int](4)

	s := p.Get()
	s = append(s, 1, 2, 3)
	p.Put(s)

	s2 := p.Get()
	assert.Equal(t, 0, len(s2))
}

func TestMapPool_ClearsEntriesBetweenUses(t *testing.T) {
	p := NewMapPool[string, int](4)

	m := p.Get()
	m["a"] = 1
	p.Put(m)

	m2 := p.Get()
	assert.Len(t, m2, 0)
}

func TestPool_StatsTracksGetsAndNews(t *testing.T) {
	p := NewPool(func() *int {
		v := 0
		return &v
	}, func(v **int) {
		**v = 0
	})

	v := p.Get()
	*v = 7
	p.Put(v)
	p.Get()

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
}
