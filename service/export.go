package service

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/fakeman1232/Contract-Ledger-app/billing"
	"github.com/fakeman1232/Contract-Ledger-app/model"
)

const (
	ledgerSheet  = "合同列表"
	monthlySheet = "月度台账"
)

var ledgerHeaders = []string{
	"合同名称",
	"供应单位",
	"合同编号",
	"合同签订时间",
	"合同金额",
	"累计计价(含税)",
	"累计计价(不含税)",
	"累计付款(含税)",
	"累计付款(不含税)",
	"支付比例",
	"分类",
	"创建时间",
}

var ledgerWidths = []float64{30, 20, 20, 15, 15, 15, 15, 15, 15, 10, 10, 20}

var monthlyHeaders = []string{"合同名称", "供应单位", "月份", "计价(不含税)", "付款(含税)"}

// ExportFilename names the workbook for a category view; "" is all contracts.
func ExportFilename(category model.Category, day string) string {
	label := "全部"
	if category != "" {
		label = category.Label()
	}
	return fmt.Sprintf("合同台账_%s_%s.xlsx", label, day)
}

// WriteLedgerWorkbook writes the contract ledger as XLSX: one row per
// contract, and a second sheet with every month of both ledgers.
func WriteLedgerWorkbook(w io.Writer, contracts []*model.Contract) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(monthlySheet); err != nil {
		return err
	}

	if err := writeRow(f, ledgerSheet, 1, toCells(ledgerHeaders)); err != nil {
		return err
	}
	for i, c := range contracts {
		ratio := ""
		if c.PaymentRatio != "" {
			ratio = c.PaymentRatio + "%"
		}
		row := []any{
			c.ContractName,
			c.Supplier,
			c.ContractNumber,
			c.SignDate,
			amountCell(c.ContractAmount),
			amountCell(c.TotalBillingTaxIncluded),
			amountCell(c.TotalBillingTaxExcluded),
			amountCell(c.TotalPaymentTaxIncluded),
			amountCell(c.TotalPaymentTaxExcluded),
			ratio,
			c.Category.Label(),
			c.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writeRow(f, ledgerSheet, i+2, row); err != nil {
			return err
		}
	}
	for i, width := range ledgerWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(ledgerSheet, col, col, width); err != nil {
			return err
		}
	}
	if err := styleAmounts(f, ledgerSheet, "E", "I", len(contracts)+1); err != nil {
		return err
	}

	if err := writeRow(f, monthlySheet, 1, toCells(monthlyHeaders)); err != nil {
		return err
	}
	line := 2
	for _, c := range contracts {
		for _, month := range mergedMonths(c) {
			row := []any{
				c.ContractName,
				c.Supplier,
				month,
				amountCell(c.MonthlyBilling[month]),
				amountCell(c.MonthlyPayment[month]),
			}
			if err := writeRow(f, monthlySheet, line, row); err != nil {
				return err
			}
			line++
		}
	}
	if err := f.SetColWidth(monthlySheet, "A", "B", 25); err != nil {
		return err
	}
	if err := styleAmounts(f, monthlySheet, "D", "E", line-1); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toCells(headers []string) []any {
	cells := make([]any, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	return cells
}

// amountCell writes parseable amounts as numbers and anything else verbatim.
func amountCell(s string) any {
	d, ok := billing.ParseAmount(s)
	if !ok {
		return s
	}
	v, _ := d.Float64()
	return v
}

func styleAmounts(f *excelize.File, sheet, from, to string, lastRow int) error {
	if lastRow < 2 {
		return nil
	}
	style, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, fmt.Sprintf("%s2", from), fmt.Sprintf("%s%d", to, lastRow), style)
}

func mergedMonths(c *model.Contract) []string {
	all := make(model.MonthlyLedger, len(c.MonthlyBilling)+len(c.MonthlyPayment))
	for m := range c.MonthlyBilling {
		all[m] = ""
	}
	for m := range c.MonthlyPayment {
		all[m] = ""
	}
	return all.Months()
}
