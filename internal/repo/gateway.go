package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// Collection names a document collection exposed by the Gateway.
type Collection string

const (
	Requests Collection = "requests"
	Offers   Collection = "offers"
	Chats    Collection = "chats"
	Messages Collection = "messages"
	Reviews  Collection = "reviews"
	Profiles Collection = "profiles"
)

var collections = map[Collection]reflect.Type{
	Requests: reflect.TypeOf(domain.ServiceRequest{}),
	Offers:   reflect.TypeOf(domain.Offer{}),
	Chats:    reflect.TypeOf(domain.Chat{}),
	Messages: reflect.TypeOf(domain.Message{}),
	Reviews:  reflect.TypeOf(domain.Review{}),
	Profiles: reflect.TypeOf(domain.UserProfile{}),
}

// Op is a comparison operator usable in a Filter.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpIn  Op = "in"
)

// Filter is one field predicate. Field is a column name.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts query results by a column.
type Order struct {
	Field string
	Desc  bool
}

// ErrUnknownField is returned when a document or filter names a field the
// collection does not have.
var ErrUnknownField = errors.New("unknown field")

// Gateway is a document-shaped view over the GORM models. It lets the
// realtime feed and generic handlers read and patch records without knowing
// their Go types.
type Gateway struct {
	db *gorm.DB
}

// NewGateway wraps db.
func NewGateway(db *gorm.DB) *Gateway { return &Gateway{db: db} }

func (g *Gateway) model(coll Collection) (any, *schema.Schema, error) {
	t, ok := collections[coll]
	if !ok {
		return nil, nil, fmt.Errorf("gateway: unknown collection %q", coll)
	}
	m := reflect.New(t).Interface()
	stmt := &gorm.Statement{DB: g.db}
	if err := stmt.Parse(m); err != nil {
		return nil, nil, err
	}
	return m, stmt.Schema, nil
}

// Create inserts doc into coll and returns its id. A missing id is
// generated.
func (g *Gateway) Create(ctx context.Context, coll Collection, doc domain.Document) (string, error) {
	m, _, err := g.model(coll)
	if err != nil {
		return "", err
	}
	d := make(domain.Document, len(doc)+1)
	for k, v := range doc {
		d[k] = v
	}
	if d.ID() == "" {
		d["id"] = uuid.NewString()
	}
	if err := domain.FromDocument(d, m); err != nil {
		return "", fmt.Errorf("gateway: decode %s: %w", coll, err)
	}
	if err := g.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return "", translate(err)
	}
	return d.ID(), nil
}

// Get loads one record as a Document, or ErrNotFound.
func (g *Gateway) Get(ctx context.Context, coll Collection, id string) (domain.Document, error) {
	m, _, err := g.model(coll)
	if err != nil {
		return nil, err
	}
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(m).Error; err != nil {
		return nil, err
	}
	return domain.ToDocument(m)
}

// Update applies a partial document to one record. Only the named fields are
// written; the id cannot change. Returns ErrNotFound if the record is
// missing and ErrUnknownField for fields the collection lacks.
func (g *Gateway) Update(ctx context.Context, coll Collection, id string, partial domain.Document) error {
	m, s, err := g.model(coll)
	if err != nil {
		return err
	}
	if len(partial) == 0 {
		return nil
	}
	if _, ok := partial["id"]; ok {
		return fmt.Errorf("gateway: id is immutable: %w", ErrUnknownField)
	}
	cols, err := columnsFor(s, collections[coll], partial)
	if err != nil {
		return err
	}

	db := g.db.WithContext(ctx)
	if err := db.Where("id = ?", id).First(m).Error; err != nil {
		return err
	}
	if err := domain.FromDocument(partial, m); err != nil {
		return fmt.Errorf("gateway: decode %s: %w", coll, err)
	}
	cols = append(cols, "updated_at")
	return db.Model(m).Select(cols).Omit(clause.Associations).Updates(m).Error
}

// Query returns records of coll matching every filter.
func (g *Gateway) Query(ctx context.Context, coll Collection, filters []Filter, order *Order, limit int) ([]domain.Document, error) {
	m, s, err := g.model(coll)
	if err != nil {
		return nil, err
	}
	where := sq.And{}
	for _, f := range filters {
		col, err := column(s, f.Field)
		if err != nil {
			return nil, err
		}
		pred, err := predicate(col, f)
		if err != nil {
			return nil, err
		}
		where = append(where, pred)
	}

	q := g.db.WithContext(ctx).Model(m)
	if len(where) > 0 {
		sqlStr, args, err := where.ToSql()
		if err != nil {
			return nil, err
		}
		q = q.Where(sqlStr, args...)
	}
	if order != nil {
		col, err := column(s, order.Field)
		if err != nil {
			return nil, err
		}
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: order.Desc})
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	rows := reflect.New(reflect.SliceOf(collections[coll]))
	if err := q.Find(rows.Interface()).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, rows.Elem().Len())
	for i := 0; i < rows.Elem().Len(); i++ {
		doc, err := domain.ToDocument(rows.Elem().Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func column(s *schema.Schema, name string) (string, error) {
	f := s.LookUpField(name)
	if f == nil || f.DBName == "" {
		return "", fmt.Errorf("gateway: %s.%s: %w", s.Table, name, ErrUnknownField)
	}
	return f.DBName, nil
}

func predicate(col string, f Filter) (sq.Sqlizer, error) {
	switch f.Op {
	case OpEq:
		return sq.Eq{col: f.Value}, nil
	case OpNe:
		return sq.NotEq{col: f.Value}, nil
	case OpLt:
		return sq.Lt{col: f.Value}, nil
	case OpLte:
		return sq.LtOrEq{col: f.Value}, nil
	case OpGt:
		return sq.Gt{col: f.Value}, nil
	case OpGte:
		return sq.GtOrEq{col: f.Value}, nil
	case OpIn:
		v := reflect.ValueOf(f.Value)
		if v.Kind() != reflect.Slice {
			return nil, fmt.Errorf("gateway: %q needs a list value", f.Op)
		}
		return sq.Eq{col: f.Value}, nil
	}
	return nil, fmt.Errorf("gateway: unsupported operator %q", f.Op)
}

// columnsFor maps the top-level JSON keys of a partial document to the
// columns they cover. An embedded struct key expands to all its columns.
func columnsFor(s *schema.Schema, t reflect.Type, partial domain.Document) ([]string, error) {
	goNames := map[string]string{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		goNames[name] = f.Name
	}

	var cols []string
	for key := range partial {
		goName, ok := goNames[key]
		if !ok {
			return nil, fmt.Errorf("gateway: %s.%s: %w", s.Table, key, ErrUnknownField)
		}
		n := len(cols)
		for _, f := range s.Fields {
			if f.DBName != "" && len(f.BindNames) > 0 && f.BindNames[0] == goName {
				cols = append(cols, f.DBName)
			}
		}
		if len(cols) == n {
			return nil, fmt.Errorf("gateway: %s.%s: %w", s.Table, key, ErrUnknownField)
		}
	}
	return cols, nil
}
