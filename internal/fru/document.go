package fru

import "time"

// Enumeration bounds declared by the FRU specification. Values outside them
// are carried through with a warning, not rejected.
const (
	ChassisTypeMin     = 1
	ChassisTypeMax     = 32
	ChassisTypeDefault = 2
	LangMax            = 136
)

// FruEpoch is the zero point of the board manufacture timestamp, which the
// binary format stores as minutes since 1996-01-01T00:00Z.
var FruEpoch = time.Date(1996, time.January, 1, 0, 0, 0, 0, time.UTC)

// Document is the structured form of one FRU image. A nil area is absent
// from the image. The codec never mutates a Document it was given.
type Document struct {
	Chassis *ChassisArea
	Board   *BoardArea
	Product *ProductArea
}

// ChassisArea holds the chassis information area. Type is the chassis type
// enumeration byte, passed through undecoded.
type ChassisArea struct {
	Type         byte
	PartNumber   Value
	SerialNumber Value
	OEM          []Value
}

// BoardArea holds the board information area. Language governs whether
// type-3 fields marked UseLang decode as Latin-1 or 16-bit text.
type BoardArea struct {
	Language     byte
	MfgDate      time.Time
	Manufacturer Value
	Product      Value
	SerialNumber Value
	PartNumber   Value
	FruFileID    Value
	OEM          []Value
}

// ProductArea holds the product information area.
type ProductArea struct {
	Language     byte
	Manufacturer Value
	Name         Value
	Model        Value
	Version      Value
	SerialNumber Value
	AssetTag     Value
	FruFileID    Value
	OEM          []Value
}

// FieldRef points at one named fixed field of an area. UseLang marks fields
// whose type-3 payload is interpreted per the area language; the others are
// always Latin-1. The slice order is the wire order.
type FieldRef struct {
	Key     string
	UseLang bool
	Value   *Value
}

func (a *ChassisArea) FieldRefs() []FieldRef {
	return []FieldRef{
		{Key: "partno", UseLang: false, Value: &a.PartNumber},
		{Key: "serial", UseLang: false, Value: &a.SerialNumber},
	}
}

func (a *BoardArea) FieldRefs() []FieldRef {
	return []FieldRef{
		{Key: "manufacturer", UseLang: true, Value: &a.Manufacturer},
		{Key: "product", UseLang: true, Value: &a.Product},
		{Key: "serial", UseLang: false, Value: &a.SerialNumber},
		{Key: "partno", UseLang: true, Value: &a.PartNumber},
		{Key: "fru", UseLang: false, Value: &a.FruFileID},
	}
}

func (a *ProductArea) FieldRefs() []FieldRef {
	return []FieldRef{
		{Key: "manufacturer", UseLang: true, Value: &a.Manufacturer},
		{Key: "name", UseLang: true, Value: &a.Name},
		{Key: "model", UseLang: true, Value: &a.Model},
		{Key: "version", UseLang: true, Value: &a.Version},
		{Key: "serial", UseLang: false, Value: &a.SerialNumber},
		{Key: "asset", UseLang: true, Value: &a.AssetTag},
		{Key: "fru", UseLang: true, Value: &a.FruFileID},
	}
}
