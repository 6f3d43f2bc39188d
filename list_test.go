package st

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listItem struct {
	link listNode[listItem]
	val  int
}

func newListItem(val int) *listItem {
	it := &listItem{val: val}
	it.link.owner = it
	return it
}

func TestList_EmptyByDefault(t *testing.T) {
	var head listNode[listItem]
	initList(&head)
	assert.True(t, listEmpty(&head))
	assert.Nil(t, listPopHead(&head))
}

func TestList_PushTailFIFO(t *testing.T) {
	var head listNode[listItem]
	initList(&head)

	a, b, c := newListItem(1), newListItem(2), newListItem(3)
	listPushTail(&head, &a.link)
	listPushTail(&head, &b.link)
	listPushTail(&head, &c.link)

	require.False(t, listEmpty(&head))
	assert.Equal(t, 1, listPopHead(&head).val)
	assert.Equal(t, 2, listPopHead(&head).val)
	assert.Equal(t, 3, listPopHead(&head).val)
	assert.True(t, listEmpty(&head))
}

func TestList_PushHeadLIFOOrdering(t *testing.T) {
	var head listNode[listItem]
	initList(&head)

	a, b := newListItem(1), newListItem(2)
	listPushTail(&head, &a.link)
	listPushHead(&head, &b.link)

	// b was pushed to the head, so it pops first despite a being enqueued
	// earlier.
	assert.Equal(t, 2, listPopHead(&head).val)
	assert.Equal(t, 1, listPopHead(&head).val)
}

func TestList_RemoveFromMiddle(t *testing.T) {
	var head listNode[listItem]
	initList(&head)

	a, b, c := newListItem(1), newListItem(2), newListItem(3)
	listPushTail(&head, &a.link)
	listPushTail(&head, &b.link)
	listPushTail(&head, &c.link)

	listRemove(&b.link)

	assert.Equal(t, 1, listPopHead(&head).val)
	assert.Equal(t, 3, listPopHead(&head).val)
	assert.True(t, listEmpty(&head))
}

func TestList_RemoveIsIdempotent(t *testing.T) {
	var head listNode[listItem]
	initList(&head)

	a := newListItem(1)
	listPushTail(&head, &a.link)
	listRemove(&a.link)
	assert.NotPanics(t, func() { listRemove(&a.link) })
	assert.True(t, listEmpty(&head))
}

func TestList_ForEachRemoveDrainsAndAllowsReinsert(t *testing.T) {
	var from, to listNode[listItem]
	initList(&from)
	initList(&to)

	for i := 1; i <= 3; i++ {
		it := newListItem(i)
		listPushTail(&from, &it.link)
	}

	var seen []int
	listForEachRemove(&from, func(it *listItem) {
		seen = append(seen, it.val)
		listPushTail(&to, &it.link)
	})

	assert.True(t, listEmpty(&from))
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 1, listPopHead(&to).val)
	assert.Equal(t, 2, listPopHead(&to).val)
	assert.Equal(t, 3, listPopHead(&to).val)
}
