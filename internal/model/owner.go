package model

type OwnerKind string

const (
	OwnerPortfolio OwnerKind = "portfolio"
	OwnerAccount   OwnerKind = "account"
	OwnerBrokerage OwnerKind = "brokerage"
)

func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerPortfolio, OwnerAccount, OwnerBrokerage:
		return true
	}
	return false
}

type Portfolio struct {
	PortfolioID int64
	UserID      int64
	Name        string
}

type Brokerage struct {
	BrokerageID int64
	UserID      int64
	Name        string
}

type BrokerageAccount struct {
	AccountID   int64
	BrokerageID int64
	UserID      int64
	Name        string
}

type PerformanceReport struct {
	OwnerKind OwnerKind
	OwnerID   int64
	OwnerName string
	Series    []DatedPerformance
}

// ReportFile is either the generated file itself or, when it is too large for telegram, a link to it.
type ReportFile struct {
	Name  string
	Bytes []byte
	Link  string
}
