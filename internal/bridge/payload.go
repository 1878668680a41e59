package bridge

import (
	"time"

	"finch/internal/core"
)

// Raw payload shapes, matching the bridge wire format field for field.
type (
	rawPayload struct {
		Errors   []string     `json:"errors"`
		Accounts []rawAccount `json:"accounts"`
	}

	rawAccount struct {
		ID               string           `json:"id"`
		Name             string           `json:"name"`
		Currency         string           `json:"currency"`
		Balance          string           `json:"balance"`
		AvailableBalance string           `json:"available-balance"`
		BalanceDate      int64            `json:"balance-date"`
		Org              *rawOrg          `json:"org"`
		Transactions     []rawTransaction `json:"transactions"`
	}

	rawOrg struct {
		Name    string `json:"name"`
		SfinURL string `json:"sfin-url"`
		Domain  string `json:"domain"`
	}

	rawTransaction struct {
		ID           string `json:"id"`
		Posted       int64  `json:"posted"`
		Amount       string `json:"amount"`
		Description  string `json:"description"`
		Payee        string `json:"payee"`
		Memo         string `json:"memo"`
		Pending      bool   `json:"pending"`
		TransactedAt int64  `json:"transacted_at"`
	}
)

// normalize maps the raw payload into core entities. Account types are
// inferred here, once, and never re-derived. Malformed decimal amounts
// coerce to zero so a single corrupt record cannot abort the batch.
func (p rawPayload) normalize() Snapshot {
	snap := Snapshot{Warnings: p.Errors}
	for i, ra := range p.Accounts {
		balance, _ := core.ParseAmount(ra.Balance)
		account := core.Account{
			ExternalID: ra.ID,
			Name:       ra.Name,
			Type:       core.InferAccountType(ra.Name),
			Balance:    balance,
			SortOrder:  i,
		}
		if ra.Org != nil {
			account.OrgName = ra.Org.Name
		}
		snap.Accounts = append(snap.Accounts, account)

		for _, rt := range ra.Transactions {
			amount, _ := core.ParseAmount(rt.Amount)
			snap.Transactions = append(snap.Transactions, core.Transaction{
				ExternalID:  rt.ID,
				AccountID:   ra.ID,
				Posted:      postedTime(rt.Posted),
				Amount:      amount,
				Description: rt.Description,
				Payee:       rt.Payee,
				Memo:        rt.Memo,
				Pending:     rt.Pending,
			})
		}
	}
	return snap
}

// postedTime converts unix seconds to a timestamp; zero stays the zero time
// sentinel used for pending-unposted transactions.
func postedTime(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
