package kraken

import "encoding/json"

// envelope is the common Kraken REST response wrapper: a list of error codes
// plus an endpoint-specific result payload.
type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// depthResult maps pair name to its order book.
type depthResult map[string]depthBook

type depthBook struct {
	Asks [][3]json.Number `json:"asks"` // [price, volume, timestamp]
	Bids [][3]json.Number `json:"bids"`
}

// tradesResult is keyed by pair name plus a "last" cursor; decoded manually.
type serverTimeResult struct {
	UnixTime int64 `json:"unixtime"`
}

type addOrderResult struct {
	TxID []string `json:"txid"`
}

type cancelOrderResult struct {
	Count int `json:"count"`
}

// orderInfo is one entry of the QueryOrders result.
type orderInfo struct {
	Status  string      `json:"status"`
	Vol     json.Number `json:"vol"`
	VolExec json.Number `json:"vol_exec"`
	Price   json.Number `json:"price"` // average executed price, "0.00000" before any fill
	Descr   struct {
		Price json.Number `json:"price"` // limit price
	} `json:"descr"`
}
