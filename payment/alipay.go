package payment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"storefront-service/model"
	"storefront-service/store"
)

// Alipay callbacks carry amounts as decimal yuan strings and report the
// trade verdict in trade_status.
type Alipay struct{}

func (Alipay) Method() model.PaymentMethod { return model.MethodAlipay }

func (Alipay) Parse(payload map[string]string) (*Notice, error) {
	outTradeNo := payload["out_trade_no"]
	tradeNo := payload["trade_no"]
	totalAmount := payload["total_amount"]
	tradeStatus := payload["trade_status"]

	if outTradeNo == "" || tradeNo == "" || totalAmount == "" || tradeStatus == "" {
		return nil, fmt.Errorf("alipay callback missing fields: %w", store.ErrMalformedCallback)
	}

	amount, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("alipay total_amount %q: %w", totalAmount, store.ErrMalformedCallback)
	}

	var state State
	switch tradeStatus {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		state = StateSuccess
	case "TRADE_CLOSED":
		state = StateClosed
	default:
		state = StateFailed
	}

	return &Notice{
		TransactionID: outTradeNo,
		ProviderRef:   tradeNo,
		Amount:        amount,
		State:         state,
		Raw:           payload,
	}, nil
}
