package scope

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// LoadUniverseFile 从 JSON 清单装载对象目录（离线与测试用）。
// 文件内容是 Object 数组。
func LoadUniverseFile(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取对象清单失败: %w", err)
	}
	var objects []*Object
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("解析对象清单失败: %w", err)
	}
	return NewUniverse(objects), nil
}

// IntrospectUniverse 连接目标库并反射出对象目录。
// 每个进程装载一次，之后目录只读共享。
func IntrospectUniverse(ctx context.Context, driver, dsn string) (*Universe, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开目标库失败: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("目标库连接失败: %w", err)
	}

	switch driver {
	case "mysql":
		return introspectMySQL(ctx, db)
	case "postgres":
		return introspectPostgres(ctx, db)
	case "sqlite":
		return introspectSQLite(ctx, db)
	default:
		return nil, fmt.Errorf("不支持的驱动: %s", driver)
	}
}

func introspectMySQL(ctx context.Context, db *sql.DB) (*Universe, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.table_schema, t.table_name, t.table_type, c.column_name
		FROM information_schema.tables t
		JOIN information_schema.columns c
		  ON c.table_schema = t.table_schema AND c.table_name = t.table_name
		WHERE t.table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY t.table_schema, t.table_name, c.ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("读取 information_schema 失败: %w", err)
	}
	defer rows.Close()

	collect := newCollector()
	for rows.Next() {
		var schema, name, typ, col string
		if err := rows.Scan(&schema, &name, &typ, &col); err != nil {
			return nil, err
		}
		kind := KindTable
		if typ == "VIEW" {
			kind = KindView
		}
		collect.add(schema, name, kind, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewUniverse(collect.objects()), nil
}

func introspectPostgres(ctx context.Context, db *sql.DB) (*Universe, error) {
	collect := newCollector()

	rows, err := db.QueryContext(ctx, `
		SELECT t.table_schema, t.table_name, t.table_type, c.column_name
		FROM information_schema.tables t
		JOIN information_schema.columns c
		  ON c.table_schema = t.table_schema AND c.table_name = t.table_name
		WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY t.table_schema, t.table_name, c.ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("读取 information_schema 失败: %w", err)
	}
	for rows.Next() {
		var schema, name, typ, col string
		if err := rows.Scan(&schema, &name, &typ, &col); err != nil {
			rows.Close()
			return nil, err
		}
		kind := KindTable
		if typ == "VIEW" {
			kind = KindView
		}
		collect.add(schema, name, kind, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 物化视图不在 information_schema 里
	mv, err := db.QueryContext(ctx, `
		SELECT m.schemaname, m.matviewname, a.attname
		FROM pg_matviews m
		JOIN pg_class c ON c.relname = m.matviewname
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY m.schemaname, m.matviewname, a.attnum`)
	if err == nil {
		for mv.Next() {
			var schema, name, col string
			if err := mv.Scan(&schema, &name, &col); err != nil {
				mv.Close()
				return nil, err
			}
			collect.add(schema, name, KindMaterializedView, col)
		}
		mv.Close()
	}

	seqs, err := db.QueryContext(ctx, `
		SELECT sequence_schema, sequence_name
		FROM information_schema.sequences
		ORDER BY sequence_schema, sequence_name`)
	if err == nil {
		for seqs.Next() {
			var schema, name string
			if err := seqs.Scan(&schema, &name); err != nil {
				seqs.Close()
				return nil, err
			}
			collect.addObject(&Object{Schema: schema, Name: name, Kind: KindSequence})
		}
		seqs.Close()
	}

	return NewUniverse(collect.objects()), nil
}

func introspectSQLite(ctx context.Context, db *sql.DB) (*Universe, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("读取 sqlite_master 失败: %w", err)
	}
	type rel struct {
		name string
		kind ObjectKind
	}
	var rels []rel
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			rows.Close()
			return nil, err
		}
		kind := KindTable
		if typ == "view" {
			kind = KindView
		}
		rels = append(rels, rel{name, kind})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	collect := newCollector()
	for _, r := range rels {
		cols, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", r.name))
		if err != nil {
			return nil, err
		}
		for cols.Next() {
			var cid int
			var name, typ string
			var notnull, pk int
			var dflt sql.NullString
			if err := cols.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
				cols.Close()
				return nil, err
			}
			collect.add("", r.name, r.kind, name)
		}
		cols.Close()
	}
	return NewUniverse(collect.objects()), nil
}

// collector 把逐列的反射结果聚成对象清单
type collector struct {
	order []string
	objs  map[string]*Object
}

func newCollector() *collector {
	return &collector{objs: make(map[string]*Object)}
}

func (c *collector) add(schema, name string, kind ObjectKind, col string) {
	key := schema + "." + name
	obj, ok := c.objs[key]
	if !ok {
		obj = &Object{Schema: schema, Name: name, Kind: kind}
		c.objs[key] = obj
		c.order = append(c.order, key)
	}
	obj.Columns = append(obj.Columns, col)
}

func (c *collector) addObject(obj *Object) {
	key := obj.Schema + "." + obj.Name
	if _, ok := c.objs[key]; ok {
		return
	}
	c.objs[key] = obj
	c.order = append(c.order, key)
}

func (c *collector) objects() []*Object {
	out := make([]*Object, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.objs[key])
	}
	return out
}
