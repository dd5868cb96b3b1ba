package api

// Request and response types for the REST surface. Amounts travel as
// decimal strings (18-decimal base units); identities as 0x-hex
// addresses supplied by the wallet layer in front of this API.

// ==============================
// Requests
// ==============================

type TransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ApproveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type TransferFromRequest struct {
	Spender string `json:"spender"`
	Owner   string `json:"owner"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
}

type NativeFundsRequest struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type TokenFundsRequest struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type MakeOrderRequest struct {
	Maker      string `json:"maker"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
}

type CancelOrderRequest struct {
	Caller string `json:"caller"`
}

type FillOrderRequest struct {
	Taker string `json:"taker"`
}

// ==============================
// Responses
// ==============================

type TokenInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

type BalanceResponse struct {
	Balance string `json:"balance"`
}

type AllowanceResponse struct {
	Allowance string `json:"allowance"`
}

type OrderInfo struct {
	ID         uint64 `json:"id"`
	Maker      string `json:"maker"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"`
	Filled     bool   `json:"filled"`
	Cancelled  bool   `json:"cancelled"`
}

type OrderCountResponse struct {
	Count uint64 `json:"count"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket messages
// ==============================

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
