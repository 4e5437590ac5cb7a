package types

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
	SourceChain string
	DestChain   string
	Recipient   string
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	SourceAmount string `json:"source_amount"`
	SourceToken  string `json:"source_token"`
	SourceChain  string `json:"source_chain"`
	DestAmount   string `json:"dest_amount"`
	DestToken    string `json:"dest_token"`
	DestChain    string `json:"dest_chain"`
	Rate         string `json:"rate"`
	PriceOrigin  string `json:"price_origin"`
}
