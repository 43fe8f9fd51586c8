package infra

// pdf.go
// Drawer close report ("cierre Z") rendered on thermal-receipt paper with
// go-pdf/fpdf: session header, per-type subtotals, expected vs counted cash
// and the variance classification.

import (
	"bytes"
	"fmt"

	"clubpos/internal/dto"
	"clubpos/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

var etiquetasMovimiento = map[string]string{
	model.MovVenta:     "Ventas",
	model.MovReembolso: "Reembolsos",
	model.MovPropina:   "Propinas",
	model.MovDeposito:  "Depositos",
	model.MovRetiro:    "Retiros",
}

// GenerarReporteCajaPDF renders rep and returns the PDF bytes.
func GenerarReporteCajaPDF(rep *dto.ReporteCajaResponse) ([]byte, error) {
	if rep == nil {
		return nil, fmt.Errorf("pdf: reporte vacio")
	}
	s := rep.Sesion

	// 80mm roll; height grows with the movement table
	alto := 120.0 + 4*float64(len(model.TiposMovimiento))
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 80, Ht: alto},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(true, 4)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8
	colL := contentW * 0.62
	colR := contentW - colL

	fila := func(label string, monto decimal.Decimal) {
		pdf.CellFormat(colL, 4.5, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(colR, 4.5, "$"+monto.StringFixed(2), "", 1, "R", false, 0, "")
	}
	separador := func() {
		pdf.Ln(1)
		pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
		pdf.Ln(2)
	}

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 6, "Cierre de Caja", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, s.ID, "", 1, "C", false, 0, "")
	pdf.CellFormat(contentW, 4, "Apertura: "+s.OpenedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	if s.ClosedAt != nil {
		pdf.CellFormat(contentW, 4, "Cierre:   "+s.ClosedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	} else {
		pdf.CellFormat(contentW, 4, tr("Sesión abierta (reporte parcial)"), "", 1, "L", false, 0, "")
	}
	separador()

	// ── Subtotals ────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(colL, 5, "Movimientos", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colR, 5, "Subtotal", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	for _, tipo := range model.TiposMovimiento {
		label := fmt.Sprintf("%s (%d)", etiquetasMovimiento[tipo], rep.CantidadPorTipo[tipo])
		fila(label, rep.SubtotalPorTipo[tipo])
	}
	separador()

	// ── Totals ───────────────────────────────────────────────────────────────
	fila("Fondo inicial", s.MontoApertura)
	fila("Total sistema", rep.TotalSistema)
	pdf.SetFont("Helvetica", "B", 8)
	fila("Esperado", rep.EsperadoCalc)
	if s.MontoCierre != nil {
		fila("Contado", *s.MontoCierre)
	}

	if s.Desvio != nil {
		separador()
		pdf.SetFont("Helvetica", "B", 9)
		fila(fmt.Sprintf("Desvío %s%%", s.Desvio.Porcentaje.StringFixed(2)), s.Desvio.Monto)
		pdf.SetFont("Helvetica", "", 7)
		pdf.CellFormat(contentW, 4, tr("Clasificación: "+s.Desvio.Clasificacion), "", 1, "L", false, 0, "")
	}
	if rep.Deriva != nil && !rep.Deriva.IsZero() {
		pdf.SetFont("Helvetica", "I", 7)
		fila("Deriva (recalculo - cierre)", *rep.Deriva)
	}

	// ── Footer ───────────────────────────────────────────────────────────────
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, "Firma responsable: ____________________", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: render: %w", err)
	}
	return buf.Bytes(), nil
}
