package yahoo

// searchResponse is the shape of the /v1/finance/search endpoint.
type searchResponse struct {
	Quotes []searchQuote `json:"quotes"`
}

type searchQuote struct {
	Symbol          string `json:"symbol"`
	ShortName       string `json:"shortname"`
	LongName        string `json:"longname"`
	Exchange        string `json:"exchange"`
	PrimaryExchange string `json:"primaryExchange"`
	QuoteType       string `json:"quoteType"`
}

// chartResponse is the shape of the /v8/finance/chart endpoint. Closes are
// pointers because Yahoo emits JSON nulls for sessions without a print.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}
