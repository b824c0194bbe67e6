package scope

import (
	"math/rand"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ObjectKind 数据库对象类别
type ObjectKind int

const (
	KindTable ObjectKind = iota
	KindView
	KindMaterializedView
	KindSequence
)

var kindNames = map[ObjectKind]string{
	KindTable:            "table",
	KindView:             "view",
	KindMaterializedView: "materialized view",
	KindSequence:         "sequence",
}

func (k ObjectKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Object 真实数据库对象的描述：模式、名字、类别和列清单。
// 序列没有列。
type Object struct {
	Schema  string     `json:"schema"`
	Name    string     `json:"name"`
	Kind    ObjectKind `json:"kind"`
	Columns []string   `json:"columns"`
}

// Universe 进程级只读对象目录，按类别分桶。
// 初始装载完成后不再变化，可以被并发运行的生成引擎无锁共享。
type Universe struct {
	byKind  map[ObjectKind][]*Object
	byName  map[string]*Object
	schemas []string
}

// NewUniverse 从对象清单构建目录。
// 对象名用 Unicode 排序规则排序，保证同一份清单在任何装载顺序下
// 产生相同的遍历顺序，进而保证固定种子下生成结果可复现。
func NewUniverse(objects []*Object) *Universe {
	sorted := make([]*Object, len(objects))
	copy(sorted, objects)
	cl := collate.New(language.Und)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Schema != b.Schema {
			return cl.CompareString(a.Schema, b.Schema) < 0
		}
		return cl.CompareString(a.Name, b.Name) < 0
	})

	u := &Universe{
		byKind: make(map[ObjectKind][]*Object),
		byName: make(map[string]*Object),
	}
	seenSchema := make(map[string]bool)
	for _, obj := range sorted {
		u.byKind[obj.Kind] = append(u.byKind[obj.Kind], obj)
		u.byName[obj.Name] = obj
		if obj.Schema != "" && !seenSchema[obj.Schema] {
			seenSchema[obj.Schema] = true
			u.schemas = append(u.schemas, obj.Schema)
		}
	}
	return u
}

// Objects 返回某类别下的全部对象（排序后的内部切片，调用方不得修改）
func (u *Universe) Objects(kind ObjectKind) []*Object {
	return u.byKind[kind]
}

// Lookup 按名字查对象
func (u *Universe) Lookup(name string) (*Object, bool) {
	obj, ok := u.byName[name]
	return obj, ok
}

// Random 随机选一个 kind 类别的对象，桶为空时返回 nil
func (u *Universe) Random(kind ObjectKind, rng *rand.Rand) *Object {
	bucket := u.byKind[kind]
	if len(bucket) == 0 {
		return nil
	}
	return bucket[rng.Intn(len(bucket))]
}

// RandomSchema 随机选一个模式名，目录为空时返回空串
func (u *Universe) RandomSchema(rng *rand.Rand) string {
	if len(u.schemas) == 0 {
		return ""
	}
	return u.schemas[rng.Intn(len(u.schemas))]
}

// Empty 目录是否没有任何对象
func (u *Universe) Empty() bool {
	return len(u.byName) == 0
}
