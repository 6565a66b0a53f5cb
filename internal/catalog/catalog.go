// Package catalog defines the medication catalog model: what the cabinet
// knows about each dispensable item, including the optional visual
// descriptors and safety thresholds the recognition and checkout paths use.
package catalog

import (
	"time"

	"medcab/pkg/colorutil"
)

// Shape is the declared outline of a solid oral dose.
type Shape string

const (
	ShapeRound   Shape = "ROUND"
	ShapeOval    Shape = "OVAL"
	ShapeCapsule Shape = "CAPSULE"
	ShapeSquare  Shape = "SQUARE"
	ShapeDiamond Shape = "DIAMOND"
)

// SizeBucket is a coarse pill size class measured on the longest axis.
type SizeBucket string

const (
	SizeSmall  SizeBucket = "SMALL"  // <10mm
	SizeMedium SizeBucket = "MEDIUM" // 10-15mm
	SizeLarge  SizeBucket = "LARGE"  // >15mm
)

// StockStatus is the derived inventory state of an entry.
type StockStatus string

const (
	StockNormal   StockStatus = "NORMAL"
	StockLow      StockStatus = "LOW"
	StockCritical StockStatus = "CRITICAL"
	StockOut      StockStatus = "OUT"
)

// Threshold holds the per-entry consumption limits. A nil Threshold on an
// Entry means no limit is enforced for that medication.
type Threshold struct {
	SingleDoseLimit   int `json:"single_dose_limit" db:"single_dose_limit"`
	DailyLimit        int `json:"daily_limit" db:"daily_limit"`
	WarningPercentage int `json:"warning_percentage" db:"warning_percentage"`
}

// Entry is one known medication. Visual descriptor fields are optional;
// an empty Shape or Color simply disables that matching path, and a missing
// reference image disables similarity matching.
type Entry struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	GenericName string         `json:"generic_name" db:"generic_name"`
	Dosage      string         `json:"dosage" db:"dosage"`
	Description string         `json:"description" db:"description"`
	Location    string         `json:"location" db:"location"`
	Quantity    int            `json:"quantity" db:"quantity"`
	MinQuantity int            `json:"min_quantity" db:"min_quantity"`
	Expiration  *time.Time     `json:"expiration,omitempty" db:"expiration"`
	Shape       Shape          `json:"shape,omitempty" db:"shape"`
	Color       colorutil.Name `json:"color,omitempty" db:"color"`
	Size        SizeBucket     `json:"size,omitempty" db:"size"`
	Imprint     string         `json:"imprint,omitempty" db:"imprint"`
	ImagePath   string         `json:"image_path,omitempty" db:"image_path"`
	Threshold   *Threshold     `json:"threshold,omitempty"`
	ClassIndex  *int           `json:"class_index,omitempty" db:"class_index"`
}

// Status derives the stock state from current and minimum quantity.
// Below half the minimum is critical.
func (e Entry) Status() StockStatus {
	switch {
	case e.Quantity == 0:
		return StockOut
	case e.Quantity*2 <= e.MinQuantity:
		return StockCritical
	case e.Quantity <= e.MinQuantity:
		return StockLow
	default:
		return StockNormal
	}
}

// IsLowStock reports whether the entry is at or below its minimum quantity.
func (e Entry) IsLowStock() bool {
	return e.Quantity <= e.MinQuantity
}

// HasVisualDescriptors reports whether shape or color matching is possible.
func (e Entry) HasVisualDescriptors() bool {
	return e.Shape != "" || e.Color != ""
}

// Snapshot is a read-only view of the catalog passed into the recognition
// and checkout paths. The core never mutates it.
type Snapshot []Entry

// ByID returns the entry with the given id, or nil.
func (s Snapshot) ByID(id string) *Entry {
	for i := range s {
		if s[i].ID == id {
			return &s[i]
		}
	}
	return nil
}

// ByClassIndex returns the entry mapped to the given classifier class, or nil.
func (s Snapshot) ByClassIndex(idx int) *Entry {
	for i := range s {
		if s[i].ClassIndex != nil && *s[i].ClassIndex == idx {
			return &s[i]
		}
	}
	return nil
}

// InStock returns the entries with a positive on-hand quantity.
func (s Snapshot) InStock() Snapshot {
	var out Snapshot
	for _, e := range s {
		if e.Quantity > 0 {
			out = append(out, e)
		}
	}
	return out
}
