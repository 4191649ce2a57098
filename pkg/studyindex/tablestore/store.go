package tablestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// State is the cache state of one table.
type State int

const (
	Unloaded State = iota
	Loaded
	Dirty
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Dirty:
		return "dirty"
	}
	return "unknown"
}

// WriteOutcome reports what a keyed Write did.
type WriteOutcome int

const (
	Inserted WriteOutcome = iota
	Replaced
	AlreadyExists
	Ambiguous
	EmptyRow
)

func (o WriteOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case AlreadyExists:
		return "already exists"
	case Ambiguous:
		return "ambiguous key, refine"
	case EmptyRow:
		return "empty row"
	}
	return "unknown"
}

// Row is one typed table row. Rows returned by the store always carry
// every schema field, with Null for missing values.
type Row map[string]Value

// Clone returns an independent copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Get returns the named value, Null when absent.
func (r Row) Get(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Null()
}

// Change is a before/after pair produced by UpdateEntry.
type Change struct {
	Before Value
	After  Value
}

// Options controls schema policy.
type Options struct {
	// ExpandFields extends a table schema with unknown data fields
	// instead of dropping them.
	ExpandFields bool
	// ExpandTables registers backend tables that have no declared schema.
	ExpandTables bool
	Logger       *zap.Logger
}

type table struct {
	name   string
	schema Schema
	rows   []Row
	state  State
}

// Store is a set of schema-typed tables cached over a Backend. Mutations
// apply in memory; nothing reaches the backend until Save or SaveAll.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	opts     Options
	logger   *zap.Logger
	tables   map[string]*table
	dropped  map[string]bool
	warnings []Warning
}

// Open registers the declared schemas. Declared tables that the backend
// does not have yet start empty and dirty so the next save creates them.
func Open(ctx context.Context, backend Backend, schemas map[string]Schema, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		opts:    opts,
		logger:  logger.Named("tablestore"),
		tables:  make(map[string]*table),
		dropped: make(map[string]bool),
	}

	existing, err := backend.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}

	for name, schema := range schemas {
		t := &table{name: name, schema: schema.Clone()}
		if !present[name] {
			t.state = Dirty
			s.logger.Info("creating table", zap.String("table", name))
		}
		s.tables[name] = t
	}
	if opts.ExpandTables {
		for _, name := range existing {
			if _, ok := s.tables[name]; !ok {
				s.tables[name] = &table{name: name}
			}
		}
	}
	return s, nil
}

// Tables lists registered table names in sorted order.
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// State returns the cache state of a table.
func (s *Store) State(name string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return Unloaded, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t.state, nil
}

// DrainWarnings returns and clears accumulated warnings.
func (s *Store) DrainWarnings() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.warnings
	s.warnings = nil
	return out
}

func (s *Store) warn(w Warning) {
	s.warnings = append(s.warnings, w)
	s.logger.Warn("table store warning",
		zap.String("kind", string(w.Kind)),
		zap.String("table", w.Table),
		zap.String("field", w.Field),
		zap.Int("row", w.Row),
		zap.String("detail", w.Detail),
	)
}

// Load reads a table from the backend on first use. Later calls are no-ops.
func (s *Store) Load(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.ensure(ctx, name)
	return err
}

// LoadAll loads every registered table.
func (s *Store) LoadAll(ctx context.Context) error {
	for _, name := range s.Tables() {
		if err := s.Load(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensure(ctx context.Context, name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	if t.state != Unloaded {
		return t, nil
	}

	header, records, err := s.backend.ReadTable(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if t.schema == nil {
		t.schema = TextSchema(header...)
	}

	// keep[i] is false for columns dropped from the schema
	keep := make([]bool, len(header))
	for i, col := range header {
		if _, ok := t.schema.Lookup(col); ok {
			keep[i] = true
			continue
		}
		if s.opts.ExpandFields {
			t.schema = append(t.schema, Field{Name: col, Type: Text})
			keep[i] = true
			continue
		}
		s.warn(Warning{Kind: UnknownField, Table: name, Field: col, Row: -1, Detail: "dropped on load"})
	}

	rows := make([]Row, 0, len(records))
	for ri, rec := range records {
		row := t.blankRow()
		for i, col := range header {
			if !keep[i] || i >= len(rec) {
				continue
			}
			typ, _ := t.schema.Lookup(col)
			v, err := Cast(rec[i], typ)
			if err != nil {
				s.warn(Warning{Kind: CastFailure, Table: name, Field: col, Row: ri, Detail: err.Error()})
				continue
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	t.rows = rows
	t.state = Loaded
	s.logger.Debug("loaded table", zap.String("table", name), zap.Int("rows", len(rows)))
	return t, nil
}

func (t *table) blankRow() Row {
	row := make(Row, len(t.schema))
	for _, f := range t.schema {
		row[f.Name] = Null()
	}
	return row
}

func (t *table) markDirty() { t.state = Dirty }

// compile casts key values to the schema. Unknown fields are ignored with
// a warning; values that cannot be cast can never match.
func (s *Store) compile(t *table, key Key) compiledKey {
	ck := make(compiledKey, len(key))
	for _, name := range key.fields() {
		typ, ok := t.schema.Lookup(name)
		if !ok {
			s.warn(Warning{Kind: UnknownField, Table: t.name, Field: name, Row: -1, Detail: "ignored in key"})
			continue
		}
		accepted := []Value{}
		for _, raw := range key[name].Values() {
			v, err := Cast(raw, typ)
			if err != nil {
				s.warn(Warning{Kind: CastFailure, Table: t.name, Field: name, Row: -1, Detail: err.Error()})
				continue
			}
			accepted = append(accepted, v)
		}
		ck[name] = accepted
	}
	return ck
}

func (t *table) matchIndexes(ck compiledKey) []int {
	var idx []int
	for i, row := range t.rows {
		if ck.matches(row) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Filter returns copies of the rows matching key. A nil key returns all
// rows.
func (s *Store) Filter(ctx context.Context, name string, key Key) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return nil, err
	}
	ck := s.compile(t, key)
	out := []Row{}
	for _, i := range t.matchIndexes(ck) {
		out = append(out, t.rows[i].Clone())
	}
	return out, nil
}

// Rows returns copies of every row of a table.
func (s *Store) Rows(ctx context.Context, name string) ([]Row, error) {
	return s.Filter(ctx, name, nil)
}

// Fields returns the table schema.
func (s *Store) Fields(ctx context.Context, name string) (Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.schema.Clone(), nil
}

// typedRow casts data to the table schema. Unknown fields extend the
// schema under ExpandFields and are dropped otherwise. Cast failures null
// the field and record a warning.
func (s *Store) typedRow(t *table, data Row) Row {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	row := t.blankRow()
	for _, name := range names {
		raw := data[name]
		typ, ok := t.schema.Lookup(name)
		if !ok {
			if !s.opts.ExpandFields {
				s.warn(Warning{Kind: UnknownField, Table: t.name, Field: name, Row: -1, Detail: "dropped on write"})
				continue
			}
			typ = inferType(raw)
			t.schema = append(t.schema, Field{Name: name, Type: typ})
			for _, existing := range t.rows {
				existing[name] = Null()
			}
		}
		v, err := Cast(raw, typ)
		if err != nil {
			s.warn(Warning{Kind: CastFailure, Table: t.name, Field: name, Row: -1, Detail: err.Error()})
			v = Null()
		}
		row[name] = v
	}
	return row
}

func allNull(row Row) bool {
	for _, v := range row {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

// Write stores data in a table. Without a key the row is appended. With a
// key: no match inserts, one match replaces when overwrite is set and is
// otherwise left alone, several matches leave the table unchanged.
func (s *Store) Write(ctx context.Context, name string, data Row, key Key, overwrite bool) (WriteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return 0, err
	}

	if key == nil {
		row := s.typedRow(t, data)
		if allNull(row) {
			return EmptyRow, nil
		}
		t.rows = append(t.rows, row)
		t.markDirty()
		return Inserted, nil
	}

	idx := t.matchIndexes(s.compile(t, key))
	switch {
	case len(idx) > 1:
		s.warn(Warning{Kind: AmbiguousKey, Table: name, Row: -1, Detail: fmt.Sprintf("%d rows match, refine key", len(idx))})
		return Ambiguous, nil
	case len(idx) == 1 && !overwrite:
		return AlreadyExists, nil
	}

	row := s.typedRow(t, data)
	if allNull(row) {
		return EmptyRow, nil
	}
	if len(idx) == 1 {
		t.rows = append(t.rows[:idx[0]], t.rows[idx[0]+1:]...)
		t.rows = append(t.rows, row)
		t.markDirty()
		return Replaced, nil
	}
	t.rows = append(t.rows, row)
	t.markDirty()
	return Inserted, nil
}

// UpdateField sets field to value on every row matching key and returns
// the number of rows changed.
func (s *Store) UpdateField(ctx context.Context, name string, key Key, field string, value any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return 0, err
	}
	return s.updateField(t, key, field, value)
}

func (s *Store) updateField(t *table, key Key, field string, value any) (int, error) {
	typ, ok := t.schema.Lookup(field)
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.name, field)
	}
	v, err := Cast(value, typ)
	if err != nil {
		return 0, fmt.Errorf("update %s.%s: %w", t.name, field, err)
	}
	idx := t.matchIndexes(s.compile(t, key))
	if len(idx) == 0 {
		s.warn(Warning{Kind: NoMatch, Table: t.name, Field: field, Row: -1})
		return 0, fmt.Errorf("update %s.%s: %w", t.name, field, ErrNoMatch)
	}
	for _, i := range idx {
		t.rows[i][field] = v
	}
	t.markDirty()
	return len(idx), nil
}

// UpdateEntry applies the fields of data that differ from the single row
// matching key. It returns the applied changes by field.
func (s *Store) UpdateEntry(ctx context.Context, name string, key Key, data Row) (map[string]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return nil, err
	}

	idx := t.matchIndexes(s.compile(t, key))
	switch {
	case len(idx) == 0:
		s.warn(Warning{Kind: NoMatch, Table: name, Row: -1})
		return nil, fmt.Errorf("update %s: %w", name, ErrNoMatch)
	case len(idx) > 1:
		s.warn(Warning{Kind: AmbiguousKey, Table: name, Row: -1, Detail: fmt.Sprintf("%d rows match, refine key", len(idx))})
		return nil, fmt.Errorf("update %s: %w", name, ErrMultipleRows)
	}

	current := t.rows[idx[0]]
	staged := make(map[string]Value)
	changes := make(map[string]Change)
	for field, raw := range data {
		typ, ok := t.schema.Lookup(field)
		if !ok {
			s.warn(Warning{Kind: UnknownField, Table: name, Field: field, Row: idx[0], Detail: "ignored in update"})
			continue
		}
		v, err := Cast(raw, typ)
		if err != nil {
			return nil, fmt.Errorf("update %s.%s: %w", name, field, err)
		}
		if current.Get(field).Equal(v) {
			continue
		}
		staged[field] = v
		changes[field] = Change{Before: current.Get(field), After: v}
	}
	for field, v := range staged {
		current[field] = v
	}
	if len(changes) > 0 {
		t.markDirty()
	}
	return changes, nil
}

// Delete removes the rows matching key and returns them. An empty key is
// rejected rather than clearing the table.
func (s *Store) Delete(ctx context.Context, name string, key Key) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return nil, err
	}
	ck := s.compile(t, key)
	if len(ck) == 0 {
		return nil, fmt.Errorf("delete from %s: %w", name, ErrEmptyKey)
	}

	var removed []Row
	kept := t.rows[:0]
	for _, row := range t.rows {
		if ck.matches(row) {
			removed = append(removed, row)
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	if len(removed) > 0 {
		t.markDirty()
	}
	return removed, nil
}

// AddField appends a field to a table schema. Existing rows get Null.
func (s *Store) AddField(ctx context.Context, name string, field Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return err
	}
	if _, ok := t.schema.Lookup(field.Name); ok {
		return nil
	}
	t.schema = append(t.schema, field)
	for _, row := range t.rows {
		row[field.Name] = Null()
	}
	t.markDirty()
	return nil
}

// DeleteField removes a field from the schema and every row.
func (s *Store) DeleteField(ctx context.Context, name, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.ensure(ctx, name)
	if err != nil {
		return err
	}
	if _, ok := t.schema.Lookup(field); !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, name, field)
	}
	t.schema = t.schema.without(field)
	for _, row := range t.rows {
		delete(row, field)
	}
	t.markDirty()
	return nil
}

// CreateTable registers an empty table. It is persisted on the next save.
func (s *Store) CreateTable(name string, schema Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return fmt.Errorf("create table %s: %w", name, ErrTableExists)
	}
	s.tables[name] = &table{name: name, schema: schema.Clone(), rows: []Row{}, state: Dirty}
	delete(s.dropped, name)
	return nil
}

// DropTable unregisters a table. The backend copy is removed on SaveAll.
func (s *Store) DropTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	delete(s.tables, name)
	s.dropped[name] = true
	return nil
}

// Save writes one table if it is dirty.
func (s *Store) Save(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return s.save(ctx, t)
}

func (s *Store) save(ctx context.Context, t *table) error {
	if t.state != Dirty {
		return nil
	}
	header := t.schema.Names()
	records := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rec := make([]string, len(header))
		for j, col := range header {
			rec[j] = row.Get(col).Encode()
		}
		records[i] = rec
	}
	if err := s.backend.WriteTable(ctx, t.name, header, records); err != nil {
		return fmt.Errorf("save %s: %w", t.name, err)
	}
	t.state = Loaded
	s.logger.Debug("saved table", zap.String("table", t.name), zap.Int("rows", len(records)))
	return nil
}

// SaveAll writes every dirty table and removes dropped ones.
func (s *Store) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.save(ctx, s.tables[name]); err != nil {
			return err
		}
	}
	for name := range s.dropped {
		if err := s.backend.DeleteTable(ctx, name); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		delete(s.dropped, name)
	}
	return nil
}
