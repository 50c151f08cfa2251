package model

import (
	"bytes"
	"encoding/json"

	"storefront/pkg/common/domain"
)

const CashOnDeliveryMarker = "Cash On Delivery"

// PaymentProof is either an uploaded receipt image or cash on delivery.
// On the wire cash on delivery is the literal marker string.
type PaymentProof struct {
	CashOnDelivery bool
	Image          domain.Image
}

func CashOnDelivery() PaymentProof {
	return PaymentProof{CashOnDelivery: true}
}

func ReceiptImage(image domain.Image) PaymentProof {
	return PaymentProof{Image: image}
}

func (p PaymentProof) MarshalJSON() ([]byte, error) {
	if p.CashOnDelivery {
		return json.Marshal(CashOnDeliveryMarker)
	}
	return json.Marshal(p.Image)
}

func (p *PaymentProof) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == CashOnDeliveryMarker || raw == "" {
			*p = CashOnDelivery()
			return nil
		}
		*p = ReceiptImage(domain.Image{URL: raw})
		return nil
	}

	var image domain.Image
	if err := json.Unmarshal(data, &image); err != nil {
		return err
	}
	*p = ReceiptImage(image)
	return nil
}
