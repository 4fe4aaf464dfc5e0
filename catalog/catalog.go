// Package catalog implements the table/index directory spec §6 assumes
// exists but leaves unspecified: table_info(oid), table_indexes(name),
// match_index(table_name, col_idx).
package catalog

import (
	"fmt"
	"sync"

	"github.com/corvidb/corvid/concurrency"
	"github.com/corvidb/corvid/index"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// TableInfo is a named, schema-typed table and the heap backing it.
type TableInfo struct {
	OID    uint32
	Name   string
	Schema types.Schema
	Heap   *table.Heap
}

// IndexInfo is a named secondary index over one table's columns.
// KeyColumns gives the schema column positions the index key is
// built from, in order; spec §6's match_index looks a single column
// up against KeyColumns[0], the leading (and, for now, only) key.
type IndexInfo struct {
	Name       string
	TableName  string
	KeyColumns []int
	Tree       index.Index
}

// Catalog is the process-wide table/index directory. Immutable once a
// table or index is created in it (spec §5's "catalog ... treated as
// immutable once constructed" — mutation here means adding new
// entries, never rewriting an existing one).
type Catalog struct {
	mu sync.RWMutex

	nextOID      uint32
	tables       map[uint32]*TableInfo
	tablesByName map[string]*TableInfo
	indexes      map[string][]*IndexInfo // by table name
}

// New builds an empty catalog.
func New() *Catalog {
	return &Catalog{
		tables:       make(map[uint32]*TableInfo),
		tablesByName: make(map[string]*TableInfo),
		indexes:      make(map[string][]*IndexInfo),
	}
}

// CreateTable registers a new table, assigning it the next OID.
func (c *Catalog) CreateTable(name string, schema types.Schema, heap *table.Heap) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tablesByName[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}

	info := &TableInfo{OID: c.nextOID, Name: name, Schema: schema, Heap: heap}
	c.tables[info.OID] = info
	c.tablesByName[name] = info
	c.nextOID++
	return info, nil
}

// TableInfoByOID is spec §6's table_info(oid).
func (c *Catalog) TableInfoByOID(oid uint32) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tables[oid]
	return info, ok
}

// TableInfoByName looks a table up by name.
func (c *Catalog) TableInfoByName(name string) (*TableInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tablesByName[name]
	return info, ok
}

// CreateIndex registers tree as a secondary index over table's
// KeyColumns, keyed by name.
func (c *Catalog) CreateIndex(name, tableName string, keyColumns []int, tree index.Index) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tablesByName[tableName]; !ok {
		return nil, fmt.Errorf("catalog: table %q not found", tableName)
	}
	for _, existing := range c.indexes[tableName] {
		if existing.Name == name {
			return nil, fmt.Errorf("catalog: index %q already exists on table %q", name, tableName)
		}
	}

	info := &IndexInfo{Name: name, TableName: tableName, KeyColumns: keyColumns, Tree: tree}
	c.indexes[tableName] = append(c.indexes[tableName], info)
	return info, nil
}

// TableIndexes is spec §6's table_indexes(name): every index
// registered against tableName, in creation order.
func (c *Catalog) TableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*IndexInfo, len(c.indexes[tableName]))
	copy(out, c.indexes[tableName])
	return out
}

// MatchIndex is spec §6's match_index(table_name, col_idx): the first
// registered index whose leading key column is colIdx, so a predicate
// on that column can be rewritten into an index scan.
func (c *Catalog) MatchIndex(tableName string, colIdx int) (*IndexInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, info := range c.indexes[tableName] {
		if len(info.KeyColumns) > 0 && info.KeyColumns[0] == colIdx {
			return info, true
		}
	}
	return nil, false
}

// Resolver adapts the catalog into the concurrency.TableResolver the
// transaction manager needs to locate a write set's heap at
// commit/abort time, without concurrency importing catalog.
func (c *Catalog) Resolver() concurrency.TableResolver {
	return func(tableOID uint32) (*table.Heap, bool) {
		info, ok := c.TableInfoByOID(tableOID)
		if !ok {
			return nil, false
		}
		return info.Heap, true
	}
}
