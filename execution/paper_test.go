package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/deeparb/types"
)

func triangularOpp(amount, ratio string) *types.Opportunity {
	now := time.Now()
	return &types.Opportunity{
		ID:             "tri-1",
		Kind:           types.KindTriangular,
		TradeAmount:    decimal.RequireFromString(amount),
		ExpectedProfit: decimal.RequireFromString(amount).Mul(decimal.RequireFromString(ratio)),
		ProfitRatio:    decimal.RequireFromString(ratio),
		GasEstimate:    decimal.RequireFromString("0.11"),
		Confidence:     0.8,
		CreatedAt:      now,
		Deadline:       now.Add(30 * time.Second),
		Triangular: &types.TriangularLeg{
			Assets: [3]string{"SUI", "USDC", "DEEP"},
		},
	}
}

func TestPaperExecutor_Fills(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{})

	res := p.Execute(context.Background(), triangularOpp("10", "0.05"))

	require.True(t, res.Success)
	require.NotNil(t, res.RealizedProfit)
	assert.True(t, res.RealizedProfit.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, res.Cost.Equal(decimal.RequireFromString("0.11")))
	assert.NoError(t, res.Error)
	assert.Equal(t, 1, p.GetMetrics()["executed"])
}

func TestPaperExecutor_CrossVenueScalesWithAmount(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{})
	now := time.Now()
	opp := &types.Opportunity{
		ID:          "cv-1",
		Kind:        types.KindCrossVenue,
		TradeAmount: decimal.NewFromInt(2),
		ProfitRatio: decimal.RequireFromString("0.01"),
		GasEstimate: decimal.RequireFromString("0.08"),
		CreatedAt:   now,
		Deadline:    now.Add(time.Minute),
		CrossVenue: &types.CrossVenueLeg{
			ReferencePrice: decimal.RequireFromString("4.30"),
			ExternalPrice:  decimal.RequireFromString("4.25"),
		},
	}

	res := p.Execute(context.Background(), opp)

	require.True(t, res.Success)
	// 2 units earning 0.01 each, whatever the quote price
	assert.True(t, res.RealizedProfit.Equal(decimal.RequireFromString("0.02")), "got %s", res.RealizedProfit)
}

func TestPaperExecutor_SlippageHaircut(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{SlippageBps: 10})

	res := p.Execute(context.Background(), triangularOpp("10", "0.05"))

	require.True(t, res.Success)
	assert.True(t, res.RealizedProfit.Equal(decimal.RequireFromString("0.49")), "got %s", res.RealizedProfit)
}

func TestPaperExecutor_Expired(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{})
	opp := triangularOpp("10", "0.05")
	opp.Deadline = time.Now().Add(-time.Second)

	res := p.Execute(context.Background(), opp)

	assert.False(t, res.Success)
	assert.Nil(t, res.RealizedProfit)
	assert.True(t, errors.Is(res.Error, ErrExpired))
}

func TestPaperExecutor_ContextDeadline(t *testing.T) {
	p := NewPaperExecutor(PaperConfig{Latency: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := p.Execute(ctx, triangularOpp("10", "0.05"))

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, ErrExpired)
	assert.Equal(t, 1, p.GetMetrics()["expired"])
}

func TestResult_TradeLog(t *testing.T) {
	opp := triangularOpp("10", "0.05")
	at := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		profit := decimal.RequireFromString("0.5")
		entry := Result{Success: true, RealizedProfit: &profit, Cost: opp.GasEstimate}.TradeLog("trade-1", opp, at)

		assert.Equal(t, types.TradeSuccess, entry.Status)
		assert.Equal(t, "trade-1", entry.ID)
		assert.Equal(t, "tri-1", entry.OpportunityID)
		assert.Equal(t, "triangular", entry.Strategy)
		require.NotNil(t, entry.Profit)
		assert.True(t, entry.Profit.Equal(profit))
	})

	t.Run("failure carries no profit", func(t *testing.T) {
		profit := decimal.RequireFromString("0.5")
		entry := Result{Success: false, RealizedProfit: &profit, Error: ErrExpired}.TradeLog("trade-2", opp, at)

		assert.Equal(t, types.TradeFailed, entry.Status)
		assert.Nil(t, entry.Profit)
		assert.Equal(t, "opportunity expired", entry.Error)
	})
}
