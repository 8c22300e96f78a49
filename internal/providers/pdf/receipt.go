package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is one occupant's AC charge for a month, ready for print.
type ReceiptData struct {
	Charge      chargedomain.Charge
	RoomName    string
	Currency    string
	RatePerUnit float64
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	charge := data.Charge
	roomName := data.RoomName
	if roomName == "" {
		roomName = charge.RoomID
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "AC electricity charge", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, statusLabel(charge), props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Occupant", props.Text{Style: fontstyle.Bold}),
			text.New(charge.OccupantName, props.Text{Top: 5}),
			text.New("Room: "+roomName, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Charge number: "+charge.ID.String(), props.Text{Align: align.Right}),
			text.New("Billing period: "+periodLabel(charge.Year, charge.Month), props.Text{Top: 5, Align: align.Right}),
			text.New("Issued: "+charge.CreatedAt.Format(time.DateOnly), props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Value", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	lines := [][2]string{
		{"Room units consumed", fmt.Sprintf("%.2f", charge.UnitsConsumed)},
		{"Rate per unit", money(data.Currency, data.RatePerUnit)},
		{"Room bill", money(data.Currency, charge.TotalBill)},
		{"Days you occupied a bed", fmt.Sprintf("%d", charge.OccupancyDays)},
		{"Occupant-days in the room", fmt.Sprintf("%d", charge.TotalOccupancyDays)},
		{"Cost per occupant-day", money(data.Currency, charge.DailyRatePerUnit)},
		{"Equal split, for reference", money(data.Currency, charge.AveragePerPerson)},
	}
	for _, line := range lines {
		m.AddRow(8,
			text.NewCol(8, line[0], props.Text{Size: 9}),
			text.NewCol(4, line[1], props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(15,
		col.New(6),
		text.NewCol(3, "Your share", props.Text{Size: 11, Style: fontstyle.Bold, Top: 5}),
		text.NewCol(3, money(data.Currency, charge.FairShare), props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Top:   5,
			Align: align.Right,
		}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func statusLabel(charge chargedomain.Charge) string {
	if charge.Status == chargedomain.StatusCollected && charge.CollectedAt != nil {
		return "Paid " + charge.CollectedAt.Format(time.DateOnly)
	}
	return "Payment pending"
}

// periodLabel renders a zero-based month, e.g. 5 -> "June 2024".
func periodLabel(year, month int) string {
	return fmt.Sprintf("%s %d", time.Month(month+1), year)
}

func money(currency string, amount float64) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}
