package main

// AccountOpened is raised once per account stream, at revision 0.
type AccountOpened struct {
	Owner   string
	Initial int64
}

func (AccountOpened) EventType() string { return "AccountOpened" }

// MoneyDeposited increases the account balance.
type MoneyDeposited struct {
	Amount int64
}

func (MoneyDeposited) EventType() string { return "MoneyDeposited" }

// MoneyWithdrawn decreases the account balance.
type MoneyWithdrawn struct {
	Amount int64
}

func (MoneyWithdrawn) EventType() string { return "MoneyWithdrawn" }

// balance replays a stream's payloads into the current balance. It is the
// demo's only interpretation of payload semantics; the store itself never
// looks inside a Payload.
func balance(payloads []any) int64 {
	var total int64
	for _, p := range payloads {
		switch ev := p.(type) {
		case AccountOpened:
			total = ev.Initial
		case MoneyDeposited:
			total += ev.Amount
		case MoneyWithdrawn:
			total -= ev.Amount
		}
	}
	return total
}
