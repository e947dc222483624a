package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is one billing history entry rendered for the client.
type ReceiptData struct {
	Issuer          string
	ReceiptNumber   string
	ClientCode      string
	DatePaid        string
	Method          string
	TransactionID   string
	Notes           string
	Amount          string
	NextBillingDate string
	IssuedAt        string
}

var ErrEmptyReceipt = errors.New("receipt number and amount are required")

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if receipt.ReceiptNumber == "" || receipt.Amount == "" {
		return nil, ErrEmptyReceipt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(6, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(6, receipt.Issuer, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 4}),
			text.New("Issued: "+receipt.IssuedAt, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.ClientCode, props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Amount+" paid on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(4, "Method", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Transaction", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(4, receipt.Method, props.Text{Size: 9}),
		text.NewCol(5, orDash(receipt.TransactionID), props.Text{Size: 9}),
		text.NewCol(3, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)

	if receipt.Notes != "" {
		m.AddRow(15,
			text.NewCol(12, "Notes: "+receipt.Notes, props.Text{Size: 9, Top: 2}),
		)
	}
	if receipt.NextBillingDate != "" {
		m.AddRow(10,
			col.New(6),
			text.NewCol(3, "Next billing date", props.Text{Size: 9}),
			text.NewCol(3, receipt.NextBillingDate, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
