package validity

import (
	"bytes"
	"iter"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// entry es el valor almacenado en el árbol.
type entry struct {
	key    ValidityKey
	record Record
}

// keyMap es un map ordenado persistente ValidityKey -> Record.
// Cada modificación produce un árbol nuevo y comparte nodos con el anterior.
type keyMap struct {
	tree *iradix.Tree
}

func newKeyMap() keyMap {
	return keyMap{tree: iradix.New()}
}

func (m keyMap) Len() int { return m.tree.Len() }

func (m keyMap) Get(k ValidityKey) (Record, bool) {
	v, ok := m.tree.Get(k.sortKey())
	if !ok {
		return Record{}, false
	}
	return v.(entry).record, true
}

// All recorre las entradas en orden de clave. Cada llamada es una pasada nueva.
func (m keyMap) All() iter.Seq2[ValidityKey, Record] {
	root := m.tree.Root()
	return func(yield func(ValidityKey, Record) bool) {
		root.Walk(func(_ []byte, v interface{}) bool {
			e := v.(entry)
			return !yield(e.key, e.record)
		})
	}
}

// keyMapTxn acumula cambios sobre un keyMap; Commit devuelve el mapa nuevo.
type keyMapTxn struct {
	txn *iradix.Txn
}

func (m keyMap) txn() *keyMapTxn {
	return &keyMapTxn{txn: m.tree.Txn()}
}

func (t *keyMapTxn) Get(k ValidityKey) (Record, bool) {
	v, ok := t.txn.Get(k.sortKey())
	if !ok {
		return Record{}, false
	}
	return v.(entry).record, true
}

func (t *keyMapTxn) Put(k ValidityKey, r Record) {
	t.txn.Insert(k.sortKey(), entry{key: k, record: r})
}

// InsertIfAbsent devuelve false si la clave ya existía.
func (t *keyMapTxn) InsertIfAbsent(k ValidityKey, r Record) bool {
	sk := k.sortKey()
	if _, ok := t.txn.Get(sk); ok {
		return false
	}
	t.txn.Insert(sk, entry{key: k, record: r})
	return true
}

// TrimBefore elimina todas las claves con hard expiry estrictamente menor a
// cutoff (epoch seconds). Como el hard expiry es el prefijo del orden, basta
// recorrer desde el mínimo hasta el primer prefijo >= cutoff.
func (t *keyMapTxn) TrimBefore(cutoff int64) int {
	bound := expiryPrefix(cutoff)
	var doomed [][]byte
	t.txn.Root().Walk(func(k []byte, _ interface{}) bool {
		if bytes.Compare(k[:len(bound)], bound) >= 0 {
			return true
		}
		doomed = append(doomed, k)
		return false
	})
	for _, k := range doomed {
		t.txn.Delete(k)
	}
	return len(doomed)
}

func (t *keyMapTxn) Commit() keyMap {
	return keyMap{tree: t.txn.Commit()}
}
