package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ayo6706/payout-settlement/internal/domain"
	"github.com/ayo6706/payout-settlement/internal/models"
)

// Resolution is a seller's unpaid balances split by who holds the money, plus
// the account the payout will be drawn from.
type Resolution struct {
	PlatformHeld []models.Balance
	NetworkHeld  []models.Balance
	Destination  models.MerchantAccount
}

// Balances returns every balance in the resolution.
func (r *Resolution) Balances() []models.Balance {
	out := make([]models.Balance, 0, len(r.PlatformHeld)+len(r.NetworkHeld))
	out = append(out, r.PlatformHeld...)
	return append(out, r.NetworkHeld...)
}

// FundHolderResolver decides where a payout is drawn from.
type FundHolderResolver struct{}

// Resolve partitions balances by holder and picks the destination:
//  1. the seller's active standard account, when no balance is network-held
//  2. otherwise the seller's platform-managed sub-account
//  3. otherwise the merchant account of the first network-held balance
func (FundHolderResolver) Resolve(sellerID uuid.UUID, balances []models.Balance, accounts []models.MerchantAccount) (*Resolution, error) {
	res := &Resolution{}
	for _, b := range balances {
		if b.HolderOfFunds == domain.HolderNetwork {
			res.NetworkHeld = append(res.NetworkHeld, b)
		} else {
			res.PlatformHeld = append(res.PlatformHeld, b)
		}
	}

	var standard, subaccount *models.MerchantAccount
	byID := make(map[uuid.UUID]*models.MerchantAccount, len(accounts))
	for i := range accounts {
		a := &accounts[i]
		byID[a.ID] = a
		if !a.Active || a.SellerID == nil || *a.SellerID != sellerID {
			continue
		}
		switch a.Kind {
		case domain.AccountKindStandard:
			if standard == nil {
				standard = a
			}
		case domain.AccountKindPlatformSubaccount:
			if subaccount == nil {
				subaccount = a
			}
		}
	}

	switch {
	case standard != nil && len(res.NetworkHeld) == 0:
		res.Destination = *standard
	case subaccount != nil:
		res.Destination = *subaccount
	case len(res.NetworkHeld) > 0 && res.NetworkHeld[0].MerchantAccountID != nil && byID[*res.NetworkHeld[0].MerchantAccountID] != nil:
		res.Destination = *byID[*res.NetworkHeld[0].MerchantAccountID]
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoDestination, sellerID)
	}
	return res, nil
}
