package provider

import (
	"walletintel/internal/models"
)

// Transfers with a unit price above this, or a total value above
// maxValueUSD, are provider glitches and get dropped upstream of accounting.
const (
	maxPriceUSD = 1_000_000
	maxValueUSD = 1_000_000_000
)

// normalizeTransaction folds one raw transaction into at most one Transfer
// for the target token. A swap can move the same token in and out inside one
// hash; the in/out legs are netted, and for balanced trade legs (value ratio
// >= 0.8) the doubled USD total is halved back to the single-leg value.
func normalizeTransaction(wallet, fungibleID string, tx zerionTransaction) (models.Transfer, bool) {
	attrs := tx.Attributes

	var qtyIn, qtyOut, valueIn, valueOut float64
	var symbol, contract, sender, recipient string

	for _, tr := range attrs.Transfers {
		if tr.FungibleInfo.ID != fungibleID {
			continue
		}
		symbol = tr.FungibleInfo.Symbol
		if len(tr.FungibleInfo.Implementations) > 0 {
			contract = tr.FungibleInfo.Implementations[0].Address
		}

		value := 0.0
		if tr.Value != nil {
			value = *tr.Value
		}

		switch tr.Direction {
		case "in":
			qtyIn += tr.Quantity.Float
			valueIn += value
			sender = tr.Sender
		case "out":
			qtyOut += tr.Quantity.Float
			valueOut += value
			recipient = tr.Recipient
		}
	}

	quantity := qtyIn - qtyOut
	if quantity == 0 {
		return models.Transfer{}, false
	}

	totalValue := valueIn + valueOut
	if attrs.OperationType == "trade" && valueIn > 0 && valueOut > 0 {
		ratio := min(valueIn, valueOut) / max(valueIn, valueOut)
		if ratio >= 0.8 {
			totalValue /= 2
		}
	}

	direction := models.DirectionIn
	counterparty := sender
	if quantity < 0 {
		direction = models.DirectionOut
		counterparty = recipient
		quantity = -quantity
	}

	var price *float64
	if totalValue > 0 {
		p := totalValue / quantity
		price = &p
	}

	if (price != nil && *price > maxPriceUSD) || totalValue > maxValueUSD {
		return models.Transfer{}, false
	}

	return models.Transfer{
		Wallet:          wallet,
		TransactionHash: attrs.Hash,
		Symbol:          symbol,
		ContractAddress: contract,
		FungibleID:      fungibleID,
		Direction:       direction,
		ActionType:      classifyAction(attrs.OperationType, direction, totalValue),
		Quantity:        quantity,
		PricePerToken:   price,
		TotalValueUSD:   totalValue,
		Counterparty:    counterparty,
		Timestamp:       attrs.MinedAt,
		BlockNumber:     attrs.MinedAtBlock,
	}, true
}

// classifyAction maps a netted movement to the accounting action: a costed
// inflow is a buy, a quoted outflow a sell; peer movements with no quote are
// plain transfers, and unquoted inflows outside a receive are airdrops.
func classifyAction(operationType string, direction models.Direction, totalValue float64) models.ActionType {
	if direction == models.DirectionIn {
		if totalValue > 0 {
			return models.ActionBuy
		}
		if operationType == "receive" || operationType == "send" {
			return models.ActionTransferIn
		}
		return models.ActionAirdrop
	}

	if totalValue > 0 {
		return models.ActionSell
	}
	return models.ActionTransferOut
}
