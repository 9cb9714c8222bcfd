package payment

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"storefront-service/model"
	"storefront-service/store"
)

// Wechat callbacks carry amounts in fen (minor units); conversion back to
// yuan must be exact or the amount check in reconciliation misfires.
type Wechat struct{}

func (Wechat) Method() model.PaymentMethod { return model.MethodWechat }

func (Wechat) Parse(payload map[string]string) (*Notice, error) {
	if payload["return_code"] != "SUCCESS" {
		return nil, fmt.Errorf("wechat return_code %q: %w", payload["return_code"], store.ErrMalformedCallback)
	}

	outTradeNo := payload["out_trade_no"]
	transactionID := payload["transaction_id"]
	totalFee := payload["total_fee"]

	if outTradeNo == "" || transactionID == "" || totalFee == "" {
		return nil, fmt.Errorf("wechat callback missing fields: %w", store.ErrMalformedCallback)
	}

	fen, err := strconv.ParseInt(totalFee, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("wechat total_fee %q: %w", totalFee, store.ErrMalformedCallback)
	}

	state := StateFailed
	if payload["result_code"] == "SUCCESS" {
		state = StateSuccess
	}

	return &Notice{
		TransactionID: outTradeNo,
		ProviderRef:   transactionID,
		// Exact by construction: fen is an integer scaled down two places.
		Amount: decimal.New(fen, -2),
		State:  state,
		Raw:    payload,
	}, nil
}
