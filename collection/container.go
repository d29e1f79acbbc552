package collection

import (
	"github.com/google/btree"
)

type RowContainer interface {
	ReplaceOrInsert(row *Row)
	Delete(row *Row)
	Has(row *Row) bool
	Len() int
	Max() (*Row, bool)
	Traverse(iterator func(row *Row) bool)
	TraverseReverse(iterator func(row *Row) bool)
}

type BTreeContainer struct {
	tree *btree.BTreeG[*Row]
}

func NewBTreeContainer() *BTreeContainer {
	return &BTreeContainer{
		tree: btree.NewG(32, func(a, b *Row) bool { return a.Less(b) }),
	}
}

func (b *BTreeContainer) ReplaceOrInsert(row *Row) {
	b.tree.ReplaceOrInsert(row)
}

func (b *BTreeContainer) Delete(row *Row) {
	b.tree.Delete(row)
}

func (b *BTreeContainer) Has(row *Row) bool {
	return b.tree.Has(row)
}

func (b *BTreeContainer) Len() int {
	return b.tree.Len()
}

func (b *BTreeContainer) Max() (*Row, bool) {
	return b.tree.Max()
}

func (b *BTreeContainer) Traverse(iterator func(row *Row) bool) {
	b.tree.Ascend(iterator)
}

func (b *BTreeContainer) TraverseReverse(iterator func(row *Row) bool) {
	b.tree.Descend(iterator)
}
