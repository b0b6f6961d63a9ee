package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"agentledger/internal/money"
)

var errInvalidAmount = errors.New("invalid amount")

// amountField accepts a positive whole amount as a JSON number or as a
// string such as "50.000" or "Rp 50.000".
type amountField int64

func (a *amountField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return errInvalidAmount
		}
		value, err := money.Parse(raw)
		if err != nil {
			return errInvalidAmount
		}
		*a = amountField(value)
		return nil
	}
	value, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errInvalidAmount
	}
	*a = amountField(value)
	return nil
}

func parseAmount(a amountField) (int64, error) {
	if a <= 0 {
		return 0, errInvalidAmount
	}
	return int64(a), nil
}

// parseDate reads YYYY-MM-DD; an empty value yields the zero time.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
