package domain

import "github.com/shopspring/decimal"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

type TransactionType string

const (
	TransactionIn  TransactionType = "in"
	TransactionOut TransactionType = "out"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIn || t == TransactionOut
}

// Signed turns an unsigned magnitude into the ledger's signed quantity.
func (t TransactionType) Signed(magnitude decimal.Decimal) decimal.Decimal {
	if t == TransactionOut {
		return magnitude.Abs().Neg()
	}
	return magnitude.Abs()
}

// TransactionTypeOf is the inverse of Signed.
func TransactionTypeOf(signed decimal.Decimal) TransactionType {
	if signed.IsNegative() {
		return TransactionOut
	}
	return TransactionIn
}

type Machine string

const (
	Machine1 Machine = "Makine 1"
	Machine2 Machine = "Makine 2"
)

func (m Machine) Valid() bool {
	return m == Machine1 || m == Machine2
}

// SpoolType is the winding core (masura) used for a manufacturing run.
type SpoolType string

const (
	Spool100 SpoolType = "Masura 100"
	Spool120 SpoolType = "Masura 120"
	Spool150 SpoolType = "Masura 150"
	Spool200 SpoolType = "Masura 200"
	NoSpool  SpoolType = "Masura Yok"
)

func (s SpoolType) Valid() bool {
	switch s {
	case Spool100, Spool120, Spool150, Spool200, NoSpool:
		return true
	}
	return false
}
