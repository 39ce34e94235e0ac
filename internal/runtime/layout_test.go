package runtime

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringDescriptorLayoutMatchesContract(t *testing.T) {
	var s StringDescriptor
	assert.Equal(t, StringDataOffset, int(unsafe.Offsetof(s.Data)))
	assert.Equal(t, StringLengthOffset, int(unsafe.Offsetof(s.Length)))
	assert.Equal(t, StringCapOffset, int(unsafe.Offsetof(s.Capacity)))
	assert.Equal(t, StringRefcntOffset, int(unsafe.Offsetof(s.Refcount)))
	assert.Equal(t, StringEncOffset, int(unsafe.Offsetof(s.Encoding)))
	assert.Equal(t, StringDirtyOffset, int(unsafe.Offsetof(s.Dirty)))
	assert.Equal(t, StringUTF32Offset, int(unsafe.Offsetof(s.UTF32)))
	assert.Equal(t, StringDescSize, int(unsafe.Sizeof(s)))
}

func TestGosubStackOverflowAndUnderflow(t *testing.T) {
	var s GosubStack
	for i := 0; i < GosubStackDepth; i++ {
		require.NoError(t, s.Push(int64(i)))
	}
	err := s.Push(99)
	require.Error(t, err)
	assert.Equal(t, ErrGosubOverflow, err.Error())

	for i := GosubStackDepth - 1; i >= 0; i-- {
		v, err := s.Pop()
		require.NoError(t, err)
		assert.Equal(t, int64(i), v)
	}
	_, err = s.Pop()
	require.Error(t, err)
	assert.Equal(t, ErrGosubUnderflow, err.Error())
}

func TestDataTableRestoreToLineAndBareRestore(t *testing.T) {
	d := NewDataTable()
	d.AppendInt(100, 1)
	d.AppendInt(100, 2)
	d.AppendInt(200, 3)

	ok := d.Restore(200)
	require.True(t, ok)
	assert.False(t, d.Exhausted())

	ok = d.Restore(0)
	require.True(t, ok)
	assert.False(t, d.Exhausted())

	ok = d.Restore(999)
	assert.False(t, ok, "restoring to a line with no DATA must fail")
}

func TestGlobalsVectorSlotOffsetIsEightBytes(t *testing.T) {
	g := NewGlobalsVector(4)
	assert.Equal(t, int64(0), g.SlotOffset(0))
	assert.Equal(t, int64(24), g.SlotOffset(3))
	g.Set(3, 42)
	assert.Equal(t, int64(42), g.Get(3))
}
