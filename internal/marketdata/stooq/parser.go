package stooq

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/arena/backend/internal/marketdata"
)

// parseCSV parses Stooq's daily CSV export:
//
//	Date,Open,High,Low,Close,Volume
//	2026-01-05,185.20,187.00,184.90,185.50,41230000
func parseCSV(symbol, body string) ([]*marketdata.DailyPrice, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.ToLower(lines[0]), "date,") {
		return nil, fmt.Errorf("not a CSV export")
	}

	var bars []*marketdata.DailyPrice
	for _, line := range lines[1:] {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) < 5 {
			continue
		}

		date, err := time.Parse("2006-01-02", fields[0])
		if err != nil {
			continue
		}

		open, err1 := strconv.ParseFloat(fields[1], 64)
		high, err2 := strconv.ParseFloat(fields[2], 64)
		low, err3 := strconv.ParseFloat(fields[3], 64)
		closePrice, err4 := strconv.ParseFloat(fields[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}

		var volume int64
		if len(fields) >= 6 {
			volume, _ = strconv.ParseInt(fields[5], 10, 64)
		}

		bars = append(bars, &marketdata.DailyPrice{
			Symbol: symbol,
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no rows in CSV export")
	}
	return bars, nil
}

// parseHistoryHTML scrapes the historical-data table from the quote page.
// Row shape: Date | Open | High | Low | Close | Volume
func parseHistoryHTML(symbol, html string) ([]*marketdata.DailyPrice, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var bars []*marketdata.DailyPrice
	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}

		date, err := time.Parse("2006-01-02", strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil {
			return
		}

		open, err1 := parseNumber(cells.Eq(1).Text())
		high, err2 := parseNumber(cells.Eq(2).Text())
		low, err3 := parseNumber(cells.Eq(3).Text())
		closePrice, err4 := parseNumber(cells.Eq(4).Text())
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return
		}

		var volume int64
		if cells.Length() >= 6 {
			if v, err := parseNumber(cells.Eq(5).Text()); err == nil {
				volume = int64(v)
			}
		}

		bars = append(bars, &marketdata.DailyPrice{
			Symbol: symbol,
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	})

	if len(bars) == 0 {
		return nil, fmt.Errorf("no history rows found")
	}
	return bars, nil
}

// parseNumber strips thousand separators before parsing.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}
