package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront-service/store"
)

func TestAlipayParse(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"out_trade_no": "merchant-tx-1",
			"trade_no":     "2026083022001400001",
			"total_amount": "19.99",
			"trade_status": "TRADE_SUCCESS",
		}
	}

	t.Run("success", func(t *testing.T) {
		notice, err := Alipay{}.Parse(base())
		require.NoError(t, err)
		require.Equal(t, "merchant-tx-1", notice.TransactionID)
		require.Equal(t, "2026083022001400001", notice.ProviderRef)
		require.True(t, notice.Amount.Equal(decimal.RequireFromString("19.99")))
		require.Equal(t, StateSuccess, notice.State)
	})

	t.Run("finished is success", func(t *testing.T) {
		p := base()
		p["trade_status"] = "TRADE_FINISHED"
		notice, err := Alipay{}.Parse(p)
		require.NoError(t, err)
		require.Equal(t, StateSuccess, notice.State)
	})

	t.Run("closed", func(t *testing.T) {
		p := base()
		p["trade_status"] = "TRADE_CLOSED"
		notice, err := Alipay{}.Parse(p)
		require.NoError(t, err)
		require.Equal(t, StateClosed, notice.State)
	})

	t.Run("unknown status is failure", func(t *testing.T) {
		p := base()
		p["trade_status"] = "WAIT_BUYER_PAY"
		notice, err := Alipay{}.Parse(p)
		require.NoError(t, err)
		require.Equal(t, StateFailed, notice.State)
	})

	for _, field := range []string{"out_trade_no", "trade_no", "total_amount", "trade_status"} {
		t.Run("missing "+field, func(t *testing.T) {
			p := base()
			delete(p, field)
			_, err := Alipay{}.Parse(p)
			require.ErrorIs(t, err, store.ErrMalformedCallback)
		})
	}

	t.Run("bad amount", func(t *testing.T) {
		p := base()
		p["total_amount"] = "nineteen"
		_, err := Alipay{}.Parse(p)
		require.ErrorIs(t, err, store.ErrMalformedCallback)
	})
}
