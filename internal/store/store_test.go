package store

import (
	"errors"
	"testing"
	"time"

	"tevra-automation-go/internal/models"

	"github.com/shopspring/decimal"
)

func validParams() CreateRuleParams {
	return CreateRuleParams{
		Owner:            "user-1",
		Direction:        models.DirectionTopup,
		Asset:            "USDC",
		Recipient:        "0xabc",
		Amount:           decimal.NewFromInt(50),
		Threshold:        decimal.NewFromInt(100),
		ScheduleInterval: 24 * time.Hour,
	}
}

func TestCreateRuleParamsValidate(t *testing.T) {
	if err := validParams().Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*CreateRuleParams)
	}{
		{"missing owner", func(p *CreateRuleParams) { p.Owner = "" }},
		{"bad direction", func(p *CreateRuleParams) { p.Direction = "sideways" }},
		{"missing asset", func(p *CreateRuleParams) { p.Asset = "" }},
		{"missing recipient", func(p *CreateRuleParams) { p.Recipient = "" }},
		{"zero amount", func(p *CreateRuleParams) { p.Amount = decimal.Zero }},
		{"negative amount", func(p *CreateRuleParams) { p.Amount = decimal.NewFromInt(-1) }},
		{"negative threshold", func(p *CreateRuleParams) { p.Threshold = decimal.NewFromInt(-1) }},
		{"zero interval", func(p *CreateRuleParams) { p.ScheduleInterval = 0 }},
		{"cap below threshold", func(p *CreateRuleParams) { p.MaxBalance = decimal.NewFromInt(10) }},
		{"inverted price band", func(p *CreateRuleParams) {
			p.PriceMin = decimal.NewFromInt(5)
			p.PriceMax = decimal.NewFromInt(2)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestWithdrawRuleFloorOrdering(t *testing.T) {
	p := validParams()
	p.Direction = models.DirectionWithdraw
	p.Threshold = decimal.NewFromInt(500)
	p.MaxBalance = decimal.NewFromInt(10)
	if err := p.Validate(); err != nil {
		t.Fatalf("withdraw floor below threshold should validate: %v", err)
	}

	p.MaxBalance = decimal.NewFromInt(600)
	if err := p.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("withdraw floor above threshold should fail validation, got %v", err)
	}
}
