package domain

import (
	"sort"
	"strings"
)

// DerivedFields are the financial fields computed from an income
// entry's declared values. All deductions are in currency, not percent.
type DerivedFields struct {
	CardSurchargeRate float64
	TaxDeduction      float64
	CardDeduction     float64
	PayoutDeduction   float64
	NetAmount         float64
}

// ComputeDerivedFields turns an income entry's declared fields into its
// derived ones. Pure and total: absent rates and policies contribute
// zero, they never error. A fixed payout may exceed gross, producing a
// negative net amount; that is allowed.
//
// The result is computed once at write time and frozen: later changes
// to the tax-rate setting do not touch historical entries.
func ComputeDerivedFields(gross float64, method PaymentMethod, taxRate float64, payout *PayoutPolicy) DerivedFields {
	d := DerivedFields{
		CardSurchargeRate: method.SurchargeRate(),
		TaxDeduction:      gross * taxRate / 100,
	}
	d.CardDeduction = gross * d.CardSurchargeRate / 100

	if payout != nil {
		if payout.Type == PayoutFixed {
			d.PayoutDeduction = payout.Value
		} else {
			d.PayoutDeduction = gross * payout.Value / 100
		}
	}

	d.NetAmount = gross - d.TaxDeduction - d.CardDeduction - d.PayoutDeduction
	return d
}

// Deductions returns the tax, card and payout deductions of a
// transaction as stored. Expense entries always yield zeros.
func (t Transaction) Deductions() (tax, card, payout float64) {
	if !t.IsIncome() {
		return 0, 0, 0
	}
	if t.TaxRate != nil {
		tax = t.Amount * *t.TaxRate / 100
	}
	if t.CardRate != nil {
		card = t.Amount * *t.CardRate / 100
	}
	if p := t.PayoutPolicy(); p != nil {
		if p.Type == PayoutFixed {
			payout = p.Value
		} else {
			payout = t.Amount * p.Value / 100
		}
	}
	return tax, card, payout
}

// ComputeSummary folds the full transaction set into totals. It is a
// pure sum: order-independent, idempotent under recomputation, and
// {0,0,0} for an empty set. Income deductions count toward the expense
// total.
func ComputeSummary(txs []Transaction) Summary {
	var s Summary
	for _, t := range txs {
		if t.IsIncome() {
			tax, card, payout := t.Deductions()
			deductions := tax + card + payout
			s.TotalIncome += t.Amount
			s.TotalExpense += deductions
			s.Balance += t.Amount - deductions
		} else {
			s.TotalExpense += t.Amount
			s.Balance -= t.Amount
		}
	}
	return s
}

// ComputeDailyFlow buckets entries by their raw date string for the
// cash-flow chart, oldest bucket first. Income deductions are charted
// as expense volume on the entry's date.
func ComputeDailyFlow(txs []Transaction) []DailyFlow {
	buckets := make(map[string]*DailyFlow)
	for _, t := range txs {
		b, ok := buckets[t.Date]
		if !ok {
			b = &DailyFlow{Date: t.Date}
			buckets[t.Date] = b
		}
		if t.IsIncome() {
			tax, card, payout := t.Deductions()
			b.Income += t.Amount
			b.Expense += tax + card + payout
		} else {
			b.Expense += t.Amount
		}
	}

	flows := make([]DailyFlow, 0, len(buckets))
	for _, b := range buckets {
		flows = append(flows, *b)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Date < flows[j].Date })
	return flows
}

// SortByDateDesc orders transactions newest first. The comparison is
// total and the sort stable, so ties keep arrival order and repeated
// sorts of an unchanged slice are idempotent.
func SortByDateDesc(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return strings.Compare(txs[i].Date, txs[j].Date) > 0
	})
}
