// Package productdb stores the product catalogue through the database
// worker. It owns the product schema and translates catalogue operations
// into protocol batches: every mutation is one Exec batch, so a product and
// its nutrient rows appear and disappear together.
package productdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/mealframe/localdb"
	"github.com/mealframe/localdb/client"
)

// Store is the product catalogue backed by a database worker.
type Store struct {
	client *client.Client
	file   string
}

// Open initialises the database file and ensures the product schema
// exists. An empty file name selects the worker's default database.
func Open(ctx context.Context, c *client.Client, databaseFile string) (*Store, error) {
	if err := c.Init(ctx, databaseFile); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := c.Exec(ctx, databaseFile, schemaStatements()); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{client: c, file: databaseFile}, nil
}

// Add inserts or replaces a product and all its nutrient rows as one
// atomic batch.
func (s *Store) Add(ctx context.Context, id string, p Product) error {
	return s.client.Exec(ctx, s.file, insertStatements(id, p))
}

// Update rewrites every attribute of an existing product as one atomic
// batch. Updating an unknown id is a no-op, matching SQL UPDATE semantics.
func (s *Store) Update(ctx context.Context, id string, p Product) error {
	return s.client.Exec(ctx, s.file, updateStatements(id, p))
}

// Delete removes a product. The nutrient and unit rows cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Exec(ctx, s.file, []localdb.Statement{
		{SQL: "DELETE FROM products WHERE id = ?", Bind: []any{id}},
	})
}

// SetUnit sets one serving unit of a product.
func (s *Store) SetUnit(ctx context.Context, id string, unit Unit, data UnitData) error {
	sql := fmt.Sprintf("UPDATE allowed_units SET %s = ?, %s = ? WHERE id = ?",
		quote(string(unit)), quote(dividerColumn(unit)))
	return s.client.Exec(ctx, s.file, []localdb.Statement{
		{SQL: sql, Bind: []any{int64(data.Amount), int64(data.Divider), id}},
	})
}

// Search returns products whose name starts with prefix, keyed by id. An
// empty prefix returns the whole catalogue.
func (s *Store) Search(ctx context.Context, prefix string) (map[string]Product, error) {
	sql, bind := searchQuery(prefix)
	rows, err := s.client.Query(ctx, s.file, sql, bind)
	if err != nil {
		return nil, err
	}

	products := make(map[string]Product, len(rows))
	for _, row := range rows {
		id, p, err := productFromRow(row)
		if err != nil {
			return nil, err
		}
		products[id] = p
	}
	return products, nil
}

// quote wraps a column name in double quotes; several column names carry
// spaces.
func quote(name string) string {
	return `"` + name + `"`
}

// dividerColumn is the companion column holding a unit's divider.
func dividerColumn(u Unit) string {
	return string(u) + " divider"
}

func schemaStatements() []localdb.Statement {
	var macroCols strings.Builder
	for _, m := range MacroElements {
		fmt.Fprintf(&macroCols, "    %s FLOAT NOT NULL,\n", quote(string(m)))
	}

	var microCols strings.Builder
	for _, m := range MicroNutrients {
		fmt.Fprintf(&microCols, "    %s FLOAT,\n", quote(string(m)))
	}

	var unitCols strings.Builder
	for _, u := range Units {
		if u == UnitGram {
			// Everything is measurable in grams.
			fmt.Fprintf(&unitCols, "    %s INTEGER NOT NULL DEFAULT 1,\n", quote(string(u)))
			fmt.Fprintf(&unitCols, "    %s INTEGER NOT NULL DEFAULT 1,\n", quote(dividerColumn(u)))
			continue
		}
		fmt.Fprintf(&unitCols, "    %s INTEGER,\n", quote(string(u)))
		fmt.Fprintf(&unitCols, "    %s INTEGER,\n", quote(dividerColumn(u)))
	}

	return []localdb.Statement{
		{SQL: `CREATE TABLE IF NOT EXISTS products (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL,
    brand TEXT
)`},
		{SQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS macro_elements (
    id TEXT NOT NULL PRIMARY KEY,
%s    FOREIGN KEY(id) REFERENCES products(id) ON DELETE CASCADE
)`, macroCols.String())},
		{SQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS micronutrients (
    id TEXT NOT NULL PRIMARY KEY,
%s    FOREIGN KEY(id) REFERENCES products(id) ON DELETE CASCADE
)`, microCols.String())},
		{SQL: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS allowed_units (
    id TEXT NOT NULL PRIMARY KEY,
%s    FOREIGN KEY(id) REFERENCES products(id) ON DELETE CASCADE
)`, unitCols.String())},
	}
}

func brandValue(p Product) any {
	if p.Brand == "" {
		return nil
	}
	return p.Brand
}

func insertStatements(id string, p Product) []localdb.Statement {
	stmts := []localdb.Statement{{
		SQL:  "INSERT OR REPLACE INTO products (id, name, brand) VALUES (?, ?, ?)",
		Bind: []any{id, p.Name, brandValue(p)},
	}}

	cols := make([]string, 0, len(MacroElements))
	bind := []any{id}
	for _, m := range MacroElements {
		cols = append(cols, quote(string(m)))
		bind = append(bind, p.Macros[m])
	}
	stmts = append(stmts, localdb.Statement{
		SQL: fmt.Sprintf("INSERT OR REPLACE INTO macro_elements (id, %s) VALUES (%s)",
			strings.Join(cols, ", "), placeholders(len(bind))),
		Bind: bind,
	})

	cols = cols[:0]
	bind = []any{id}
	for _, m := range MicroNutrients {
		cols = append(cols, quote(string(m)))
		if v, ok := p.Micros[m]; ok {
			bind = append(bind, v)
		} else {
			bind = append(bind, nil)
		}
	}
	stmts = append(stmts, localdb.Statement{
		SQL: fmt.Sprintf("INSERT OR REPLACE INTO micronutrients (id, %s) VALUES (%s)",
			strings.Join(cols, ", "), placeholders(len(bind))),
		Bind: bind,
	})

	cols = cols[:0]
	bind = []any{id}
	for _, u := range Units {
		cols = append(cols, quote(string(u)), quote(dividerColumn(u)))
		bind = append(bind, unitBind(p, u)...)
	}
	stmts = append(stmts, localdb.Statement{
		SQL: fmt.Sprintf("INSERT OR REPLACE INTO allowed_units (id, %s) VALUES (%s)",
			strings.Join(cols, ", "), placeholders(len(bind))),
		Bind: bind,
	})

	return stmts
}

func updateStatements(id string, p Product) []localdb.Statement {
	stmts := []localdb.Statement{{
		SQL:  "UPDATE products SET name = ?, brand = ? WHERE id = ?",
		Bind: []any{p.Name, brandValue(p), id},
	}}

	sets := make([]string, 0, len(MacroElements))
	var bind []any
	for _, m := range MacroElements {
		sets = append(sets, quote(string(m))+" = ?")
		bind = append(bind, p.Macros[m])
	}
	bind = append(bind, id)
	stmts = append(stmts, localdb.Statement{
		SQL:  fmt.Sprintf("UPDATE macro_elements SET %s WHERE id = ?", strings.Join(sets, ", ")),
		Bind: bind,
	})

	sets = sets[:0]
	bind = nil
	for _, m := range MicroNutrients {
		sets = append(sets, quote(string(m))+" = ?")
		if v, ok := p.Micros[m]; ok {
			bind = append(bind, v)
		} else {
			bind = append(bind, nil)
		}
	}
	bind = append(bind, id)
	stmts = append(stmts, localdb.Statement{
		SQL:  fmt.Sprintf("UPDATE micronutrients SET %s WHERE id = ?", strings.Join(sets, ", ")),
		Bind: bind,
	})

	sets = sets[:0]
	bind = nil
	for _, u := range Units {
		sets = append(sets, quote(string(u))+" = ?", quote(dividerColumn(u))+" = ?")
		bind = append(bind, unitBind(p, u)...)
	}
	bind = append(bind, id)
	stmts = append(stmts, localdb.Statement{
		SQL:  fmt.Sprintf("UPDATE allowed_units SET %s WHERE id = ?", strings.Join(sets, ", ")),
		Bind: bind,
	})

	return stmts
}

// unitBind returns the amount/divider pair for one unit. A missing gram
// entry keeps the 1/1 identity: everything weighs something.
func unitBind(p Product, u Unit) []any {
	if d, ok := p.Units[u]; ok {
		return []any{int64(d.Amount), int64(d.Divider)}
	}
	if u == UnitGram {
		return []any{int64(1), int64(1)}
	}
	return []any{nil, nil}
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func searchQuery(prefix string) (string, []any) {
	var cols []string
	for _, m := range MacroElements {
		cols = append(cols, fmt.Sprintf("me.%s AS %s", quote(string(m)), quote(string(m))))
	}
	for _, m := range MicroNutrients {
		cols = append(cols, fmt.Sprintf("mn.%s AS %s", quote(string(m)), quote(string(m))))
	}
	for _, u := range Units {
		cols = append(cols, fmt.Sprintf("au.%s AS %s", quote(string(u)), quote(string(u))))
		cols = append(cols, fmt.Sprintf("au.%s AS %s", quote(dividerColumn(u)), quote(dividerColumn(u))))
	}

	sql := fmt.Sprintf(`SELECT p.id, p.name, p.brand, %s FROM products p
INNER JOIN macro_elements me ON p.id = me.id
INNER JOIN allowed_units au ON p.id = au.id
LEFT JOIN micronutrients mn ON p.id = mn.id`, strings.Join(cols, ", "))

	if prefix == "" {
		return sql, nil
	}
	return sql + " WHERE p.name LIKE ? || '%'", []any{prefix}
}

func productFromRow(row localdb.Row) (string, Product, error) {
	id, err := rowString(row, "id")
	if err != nil {
		return "", Product{}, err
	}
	name, err := rowString(row, "name")
	if err != nil {
		return "", Product{}, err
	}
	brand, _, err := rowStringOpt(row, "brand")
	if err != nil {
		return "", Product{}, err
	}

	p := Product{
		Name:   name,
		Brand:  brand,
		Macros: make(map[MacroElement]float64, len(MacroElements)),
		Micros: make(map[MicroNutrient]float64),
		Units:  make(map[Unit]UnitData),
	}

	for _, m := range MacroElements {
		v, err := rowFloat(row, string(m))
		if err != nil {
			return "", Product{}, err
		}
		p.Macros[m] = v
	}

	for _, m := range MicroNutrients {
		v, ok, err := rowFloatOpt(row, string(m))
		if err != nil {
			return "", Product{}, err
		}
		if ok {
			p.Micros[m] = v
		}
	}

	for _, u := range Units {
		amount, aok, err := rowUint16Opt(row, string(u))
		if err != nil {
			return "", Product{}, err
		}
		divider, dok, err := rowUint16Opt(row, dividerColumn(u))
		if err != nil {
			return "", Product{}, err
		}
		if aok && dok {
			p.Units[u] = UnitData{Amount: amount, Divider: divider}
		}
	}

	return id, p, nil
}

func rowString(row localdb.Row, key string) (string, error) {
	s, ok, err := rowStringOpt(row, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("missing string column %q", key)
	}
	return s, nil
}

func rowStringOpt(row localdb.Row, key string) (string, bool, error) {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected type %T for column %q", v, key)
	}
	return s, true, nil
}

func rowFloat(row localdb.Row, key string) (float64, error) {
	v, ok, err := rowFloatOpt(row, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("missing float column %q", key)
	}
	return v, nil
}

func rowFloatOpt(row localdb.Row, key string) (float64, bool, error) {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int64:
		return float64(n), true, nil
	default:
		return 0, false, fmt.Errorf("unexpected type %T for column %q", v, key)
	}
}

func rowUint16Opt(row localdb.Row, key string) (uint16, bool, error) {
	v, ok := row.Get(key)
	if !ok || v == nil {
		return 0, false, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected type %T for column %q", v, key)
	}
	if n < 0 || n > 65535 {
		return 0, false, fmt.Errorf("value %d out of range for column %q", n, key)
	}
	return uint16(n), true, nil
}
