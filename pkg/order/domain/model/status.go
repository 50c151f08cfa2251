package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Status string

const (
	Pending    Status = "Pending"
	Unpaid     Status = "Un-paid"
	Paid       Status = "Paid"
	Processing Status = "Processing"
	Approved   Status = "Approved"
	Delivered  Status = "Delivered"
	Cancelled  Status = "Cancelled"
)

var statuses = []Status{Pending, Unpaid, Paid, Processing, Approved, Delivered, Cancelled}

// ParseStatus accepts the canonical names case-insensitively, plus "Unpaid" and "Canceled".
func ParseStatus(raw string) (Status, error) {
	value := strings.TrimSpace(raw)
	for _, s := range statuses {
		if strings.EqualFold(value, string(s)) {
			return s, nil
		}
	}
	switch strings.ToLower(value) {
	case "unpaid":
		return Unpaid, nil
	case "canceled":
		return Cancelled, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

func (s Status) String() string { return string(s) }

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
