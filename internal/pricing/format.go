package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MinorUnits is the number of decimal places of the settlement currency (IDR).
const MinorUnits int32 = 0

const currencySymbol = "Rp"

// Format renders amount with the grouping rules of tag and no decimals,
// e.g. "Rp 1.500.000" for Indonesian.
func Format(amount decimal.Decimal, tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%s %d", currencySymbol, amount.Round(MinorUnits).IntPart())
}

// FormattedQuote is a Quote rendered for display.
type FormattedQuote struct {
	OriginalTotal  string `json:"originalTotal"`
	PointsDiscount string `json:"pointsDiscount"`
	PromoDiscount  string `json:"promoDiscount"`
	FinalTotal     string `json:"finalTotal"`
}

func (q Quote) Format(tag language.Tag) FormattedQuote {
	return FormattedQuote{
		OriginalTotal:  Format(q.OriginalTotal, tag),
		PointsDiscount: Format(q.PointsDiscount, tag),
		PromoDiscount:  Format(q.PromoDiscount, tag),
		FinalTotal:     Format(q.FinalTotal, tag),
	}
}
