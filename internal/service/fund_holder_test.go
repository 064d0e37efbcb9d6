package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

func TestFundHolderResolver(t *testing.T) {
	seller := uuid.New()
	other := uuid.New()
	account := func(kind domain.MerchantAccountKind, owner *uuid.UUID, active bool) models.MerchantAccount {
		return models.MerchantAccount{ID: uuid.New(), SellerID: owner, Kind: kind, Active: active, Currency: "USD"}
	}
	standard := account(domain.AccountKindStandard, &seller, true)
	inactiveStandard := account(domain.AccountKindStandard, &seller, false)
	subaccount := account(domain.AccountKindPlatformSubaccount, &seller, true)
	platformWide := account(domain.AccountKindPlatformSubaccount, nil, true)
	foreign := account(domain.AccountKindStandard, &other, true)

	platformBalance := models.Balance{ID: uuid.New(), HolderOfFunds: domain.HolderPlatform, Currency: "USD"}
	networkBalance := models.Balance{ID: uuid.New(), HolderOfFunds: domain.HolderNetwork, Currency: "USD", MerchantAccountID: &platformWide.ID}

	tests := []struct {
		name     string
		balances []models.Balance
		accounts []models.MerchantAccount
		want     uuid.UUID
		wantErr  error
	}{
		{
			name:     "standard account when nothing is network-held",
			balances: []models.Balance{platformBalance},
			accounts: []models.MerchantAccount{subaccount, standard},
			want:     standard.ID,
		},
		{
			name:     "network-held funds prefer the sub-account",
			balances: []models.Balance{platformBalance, networkBalance},
			accounts: []models.MerchantAccount{standard, subaccount, platformWide},
			want:     subaccount.ID,
		},
		{
			name:     "inactive standard account is skipped",
			balances: []models.Balance{platformBalance},
			accounts: []models.MerchantAccount{inactiveStandard, subaccount},
			want:     subaccount.ID,
		},
		{
			name:     "falls back to the holding account of network funds",
			balances: []models.Balance{networkBalance},
			accounts: []models.MerchantAccount{standard, platformWide},
			want:     platformWide.ID,
		},
		{
			name:     "another seller's account is never used",
			balances: []models.Balance{platformBalance},
			accounts: []models.MerchantAccount{foreign},
			wantErr:  ErrNoDestination,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := FundHolderResolver{}.Resolve(seller, tc.balances, tc.accounts)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, res.Destination.ID)
			require.Len(t, res.Balances(), len(tc.balances))
		})
	}
}

func TestFundHolderResolverPartitions(t *testing.T) {
	seller := uuid.New()
	sub := models.MerchantAccount{ID: uuid.New(), SellerID: &seller, Kind: domain.AccountKindPlatformSubaccount, Active: true}
	balances := []models.Balance{
		{ID: uuid.New(), HolderOfFunds: domain.HolderPlatform},
		{ID: uuid.New(), HolderOfFunds: domain.HolderNetwork},
		{ID: uuid.New(), HolderOfFunds: domain.HolderPlatform},
	}

	res, err := FundHolderResolver{}.Resolve(seller, balances, []models.MerchantAccount{sub})
	require.NoError(t, err)
	require.Len(t, res.PlatformHeld, 2)
	require.Len(t, res.NetworkHeld, 1)
	require.Equal(t, balances[1].ID, res.NetworkHeld[0].ID)
}
