package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Category identifies the kind of service a request asks for.
type Category string

const (
	CategoryCleaning Category = "cleaning"
	CategoryRepair   Category = "repair"
	CategoryTutoring Category = "tutoring"
	CategoryMoving   Category = "moving"
	CategoryOther    Category = "other"
)

// categoryAliases maps the display labels the mobile clients send to
// canonical categories.
var categoryAliases = map[string]Category{
	"cleaning":  CategoryCleaning,
	"temizlik":  CategoryCleaning,
	"repair":    CategoryRepair,
	"tamirat":   CategoryRepair,
	"tutoring":  CategoryTutoring,
	"özel ders": CategoryTutoring,
	"ozel ders": CategoryTutoring,
	"moving":    CategoryMoving,
	"nakliye":   CategoryMoving,
	"other":     CategoryOther,
}

// ParseCategory normalizes a client-supplied category. Unknown values map
// to CategoryOther.
func ParseCategory(s string) Category {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return CategoryOther
}

// CategoryDetails is the category-specific part of a ServiceRequest. Exactly
// one implementation exists per Category.
type CategoryDetails interface {
	Category() Category
}

// CleaningDetails describes a cleaning job.
type CleaningDetails struct {
	AreaSqm int    `json:"area_sqm" validate:"gte=0,lte=100000"`
	Rooms   string `json:"rooms"    validate:"max=32"`
	Pets    string `json:"pets"     validate:"max=120"`
}

// RepairDetails describes a repair job.
type RepairDetails struct {
	Item      string `json:"item"       validate:"required,max=200"`
	StartedAt string `json:"started_at" validate:"max=120"`
}

// TutoringDetails describes a tutoring engagement.
type TutoringDetails struct {
	StudentLevel string `json:"student_level" validate:"required,max=120"`
	Format       string `json:"format"        validate:"max=200"`
}

// MovingDetails describes a move.
type MovingDetails struct {
	Route          string `json:"route"           validate:"required,max=200"`
	Volume         string `json:"volume"          validate:"max=120"`
	ElevatorNeeded bool   `json:"elevator_needed"`
}

// OtherDetails carries free-form notes for uncategorized requests.
type OtherDetails struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (CleaningDetails) Category() Category { return CategoryCleaning }
func (RepairDetails) Category() Category   { return CategoryRepair }
func (TutoringDetails) Category() Category { return CategoryTutoring }
func (MovingDetails) Category() Category   { return CategoryMoving }
func (OtherDetails) Category() Category    { return CategoryOther }

// NewDetails returns the zero value of the variant that belongs to c.
func NewDetails(c Category) CategoryDetails {
	switch c {
	case CategoryCleaning:
		return &CleaningDetails{}
	case CategoryRepair:
		return &RepairDetails{}
	case CategoryTutoring:
		return &TutoringDetails{}
	case CategoryMoving:
		return &MovingDetails{}
	default:
		return &OtherDetails{}
	}
}

// Details wraps a CategoryDetails variant so it can be stored in one JSON
// column and sent over the wire as {"kind": "...", ...fields}.
type Details struct {
	Variant CategoryDetails
}

// Kind returns the category of the wrapped variant, or CategoryOther when
// empty.
func (d Details) Kind() Category {
	if d.Variant == nil {
		return CategoryOther
	}
	return d.Variant.Category()
}

// MarshalJSON flattens the variant fields next to a "kind" discriminator.
func (d Details) MarshalJSON() ([]byte, error) {
	v := d.Variant
	if v == nil {
		v = OtherDetails{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(v.Category())
	fields["kind"] = kind
	return json.Marshal(fields)
}

// UnmarshalJSON selects the variant from the "kind" discriminator.
func (d *Details) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		d.Variant = nil
		return nil
	}
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	kind := Category(head.Kind)
	switch kind {
	case CategoryCleaning, CategoryRepair, CategoryTutoring, CategoryMoving, CategoryOther:
	default:
		return fmt.Errorf("details: unknown kind %q", head.Kind)
	}
	v := NewDetails(kind)
	if err := json.Unmarshal(b, v); err != nil {
		return err
	}
	d.Variant = deref(v)
	return nil
}

// deref stores variants by value so equality checks compare fields.
func deref(v CategoryDetails) CategoryDetails {
	switch t := v.(type) {
	case *CleaningDetails:
		return *t
	case *RepairDetails:
		return *t
	case *TutoringDetails:
		return *t
	case *MovingDetails:
		return *t
	case *OtherDetails:
		return *t
	}
	return v
}

// ErrDetailsKindMismatch is returned by DecodeDetails when the payload names
// a kind other than the request category.
var ErrDetailsKindMismatch = errors.New("details kind does not match category")

// DecodeDetails decodes client-supplied details for category c. The "kind"
// field is optional; when present it must equal c.
func DecodeDetails(c Category, raw []byte) (Details, error) {
	v := NewDetails(c)
	if len(raw) == 0 || string(raw) == "null" {
		return Details{Variant: deref(v)}, nil
	}
	var head struct {
		Kind *string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Details{}, err
	}
	if head.Kind != nil && Category(*head.Kind) != c {
		return Details{}, ErrDetailsKindMismatch
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return Details{}, err
	}
	return Details{Variant: deref(v)}, nil
}
