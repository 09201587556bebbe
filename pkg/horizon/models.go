package horizon

// Payment is one record of the /accounts/{id}/payments feed. Which party fields are set depends on Type.
type Payment struct {
	ID              string       `json:"id"`
	PagingToken     string       `json:"paging_token"`
	Type            string       `json:"type"`
	CreatedAt       string       `json:"created_at"`
	TransactionHash string       `json:"transaction_hash"`
	SourceAccount   string       `json:"source_account"`
	From            string       `json:"from,omitempty"`
	To              string       `json:"to,omitempty"`
	Amount          string       `json:"amount,omitempty"`
	AssetType       string       `json:"asset_type,omitempty"`
	AssetCode       string       `json:"asset_code,omitempty"`
	AssetIssuer     string       `json:"asset_issuer,omitempty"`
	Account         string       `json:"account,omitempty"`
	Funder          string       `json:"funder,omitempty"`
	StartingBalance string       `json:"starting_balance,omitempty"`
	Into            string       `json:"into,omitempty"`
	Memo            string       `json:"memo,omitempty"`
	Transaction     *Transaction `json:"transaction,omitempty"` // present with join=transactions
}

type Transaction struct {
	ID            string `json:"id"`
	Hash          string `json:"hash"`
	Ledger        int64  `json:"ledger"`
	CreatedAt     string `json:"created_at"`
	SourceAccount string `json:"source_account"`
	Successful    bool   `json:"successful"`
	MemoType      string `json:"memo_type"`
	Memo          string `json:"memo,omitempty"`
}

type Operation struct {
	ID              string `json:"id"`
	PagingToken     string `json:"paging_token"`
	Type            string `json:"type"`
	CreatedAt       string `json:"created_at"`
	TransactionHash string `json:"transaction_hash"`
	SourceAccount   string `json:"source_account"`
}

type page[T any] struct {
	Embedded struct {
		Records []T `json:"records"`
	} `json:"_embedded"`
}

// problem is the Horizon error document.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}
