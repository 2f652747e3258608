package pdf

import (
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	bold      = props.Text{Style: fontstyle.Bold, Size: 9}
	boldRight = props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	cell      = props.Text{Size: 9}
	cellRight = props.Text{Size: 9, Align: align.Right}
)

// sheet is the shared layout of invoices and receipts.
type sheet struct {
	m core.Maroto
}

func newSheet() *sheet {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{Pattern: "Page {current} of {total}", Place: props.RightBottom}).
		Build()
	return &sheet{m: maroto.New(cfg)}
}

func (s *sheet) title(name, status string) {
	s.m.AddRow(12,
		text.NewCol(8, name, props.Text{Size: 20, Style: fontstyle.Bold}),
		text.NewCol(4, status, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)
}

// facts prints label/value pairs stacked in the left half.
func (s *sheet) facts(pairs ...string) {
	column := col.New(6)
	for i := 0; i+1 < len(pairs); i += 2 {
		column.Add(text.New(pairs[i]+": "+pairs[i+1], props.Text{Top: float64(2 * i)}))
	}
	s.m.AddRow(float64(2*len(pairs)+4), column, col.New(6))
}

func (s *sheet) parties(invoice InvoiceData) {
	s.m.AddRow(32,
		col.New(6).Add(
			text.New(invoice.TenantName, props.Text{Style: fontstyle.Bold}),
			text.New(invoice.TenantAddress, props.Text{Top: 5}),
			text.New(invoice.TenantPhone, props.Text{Top: 10}),
			text.New(invoice.TenantEmail, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.BillToName, props.Text{Top: 5}),
			text.New(invoice.BillToEmail, props.Text{Top: 10}),
		),
	)
}

func (s *sheet) banner(line string) {
	s.m.AddRow(15, text.NewCol(12, line, props.Text{Size: 14, Style: fontstyle.Bold, Top: 5}))
}

// lines prints fixed fees first, then usage lines under a heading.
func (s *sheet) lines(items []InvoiceItem) {
	s.m.AddRow(10,
		text.NewCol(6, "Description", bold),
		text.NewCol(2, "Qty", boldRight),
		text.NewCol(2, "Unit price", boldRight),
		text.NewCol(2, "Amount", boldRight),
	)
	var metered []InvoiceItem
	for _, item := range items {
		if item.Metric != "" {
			metered = append(metered, item)
			continue
		}
		s.line(item)
	}
	if len(metered) == 0 {
		return
	}
	s.m.AddRow(8, text.NewCol(12, "Metered usage", props.Text{Style: fontstyle.Italic, Size: 9, Top: 2}))
	for _, item := range metered {
		s.line(item)
	}
}

func (s *sheet) line(item InvoiceItem) {
	s.m.AddRow(8,
		text.NewCol(6, item.Description, cell),
		text.NewCol(2, item.Qty, cellRight),
		text.NewCol(2, item.UnitPrice, cellRight),
		text.NewCol(2, item.Amount, cellRight),
	)
}

func (s *sheet) total(label, value string) {
	s.m.AddRow(8, col.New(8), text.NewCol(2, label, bold), text.NewCol(2, value, boldRight))
}

func (s *sheet) bytes() ([]byte, error) {
	doc, err := s.m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
