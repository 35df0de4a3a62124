// Package report renders a FRU document as a printable inventory sheet.
package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/frugate/internal/fru"
)

// SaveInventoryPDF renders doc into a PDF inventory sheet at out. When the
// document carries a serial number, a QR code encoding it is stamped onto
// the sheet for scanners on the assembly line.
func SaveInventoryPDF(doc *fru.Document, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("FRU Inventory", false)
	pdf.SetAuthor("fructl", false)
	pdf.SetCreator("fructl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	addPDFTitle(pdf, "FRU Inventory")
	if doc.Chassis != nil {
		addAreaSection(pdf, tr, "Chassis", chassisRows(doc.Chassis))
	}
	if doc.Board != nil {
		addAreaSection(pdf, tr, "Board", boardRows(doc.Board))
	}
	if doc.Product != nil {
		addAreaSection(pdf, tr, "Product", productRows(doc.Product))
	}
	if serial := primarySerial(doc); serial != "" {
		if err := addSerialQR(pdf, serial); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

type row struct {
	label string
	value string
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addAreaSection(pdf *gofpdf.Fpdf, tr func(string) string, title string, rows []row) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, r := range rows {
		pdf.CellFormat(50, 6, r.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(r.value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func chassisRows(a *fru.ChassisArea) []row {
	rows := []row{{label: "Chassis Type", value: strconv.Itoa(int(a.Type))}}
	return append(rows, fieldRows(a.FieldRefs(), a.OEM)...)
}

func boardRows(a *fru.BoardArea) []row {
	rows := []row{{label: "Language", value: strconv.Itoa(int(a.Language))}}
	if !a.MfgDate.IsZero() {
		rows = append(rows, row{label: "Mfg. Date", value: a.MfgDate.UTC().Format(time.RFC3339)})
	}
	return append(rows, fieldRows(a.FieldRefs(), a.OEM)...)
}

func productRows(a *fru.ProductArea) []row {
	rows := []row{{label: "Language", value: strconv.Itoa(int(a.Language))}}
	return append(rows, fieldRows(a.FieldRefs(), a.OEM)...)
}

func fieldRows(refs []fru.FieldRef, oem []fru.Value) []row {
	var rows []row
	for _, ref := range refs {
		v := *ref.Value
		if v == nil {
			continue
		}
		rows = append(rows, row{label: fieldLabel(ref.Key), value: displayValue(v)})
	}
	for i, v := range oem {
		rows = append(rows, row{label: fmt.Sprintf("OEM %d", i+1), value: displayValue(v)})
	}
	return rows
}

func fieldLabel(key string) string {
	switch key {
	case "partno":
		return "Part Number"
	case "serial":
		return "Serial Number"
	case "manufacturer":
		return "Manufacturer"
	case "product":
		return "Product"
	case "fru":
		return "FRU File ID"
	case "name":
		return "Name"
	case "model":
		return "Model"
	case "version":
		return "Version"
	case "asset":
		return "Asset Tag"
	}
	return key
}

func displayValue(v fru.Value) string {
	if h, ok := v.(fru.HexBytes); ok {
		return fmt.Sprintf("0x%X", []byte(h))
	}
	if s := strings.TrimSpace(v.Text()); s != "" {
		return s
	}
	return "-"
}

// primarySerial picks the serial to encode in the QR stamp: the product
// serial when present, then the board serial, then the chassis serial.
func primarySerial(doc *fru.Document) string {
	var candidates []fru.Value
	if doc.Product != nil {
		candidates = append(candidates, doc.Product.SerialNumber)
	}
	if doc.Board != nil {
		candidates = append(candidates, doc.Board.SerialNumber)
	}
	if doc.Chassis != nil {
		candidates = append(candidates, doc.Chassis.SerialNumber)
	}
	for _, v := range candidates {
		if v == nil {
			continue
		}
		if s := strings.TrimSpace(v.Text()); s != "" {
			return s
		}
	}
	return ""
}

func addSerialQR(pdf *gofpdf.Fpdf, serial string) error {
	png, err := SerialQR(serial, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("serial-qr", opts, bytes.NewReader(png))

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Serial QR")
	pdf.Ln(9)
	y := pdf.GetY()
	pdf.ImageOptions("serial-qr", 15, y, 30, 30, false, opts, 0, "")
	pdf.SetXY(50, y)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, serial)
	pdf.SetY(y + 34)
	return nil
}
