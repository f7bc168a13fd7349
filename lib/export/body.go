// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"encoding/json"
	"fmt"
	"time"
)

// pairBody is the JSON shape of a completed pair, shared by the HTTP
// body and the store's DataValue column.
type pairBody struct {
	Mrs                 string    `json:"Mrs"`
	CorNo               int       `json:"CorNo"`
	Remain              int       `json:"Remain"`
	PreviousRemain      int       `json:"PreviousRemain"`
	StampRemain         time.Time `json:"StampRemain"`
	StampPreviousRemain time.Time `json:"StampPreviousRemain"`
}

// readingBody is the JSON shape of a single reading.
type readingBody struct {
	DataKey   string    `json:"DataKey"`
	DataValue string    `json:"DataValue"`
	StampTime time.Time `json:"StampTime"`
	Status    string    `json:"Status"`
}

// marshalBody encodes the event's pair or reading.
func marshalBody(event Event) ([]byte, error) {
	if err := event.validate(); err != nil {
		return nil, err
	}
	if pair := event.Pair; pair != nil {
		return json.Marshal(pairBody{
			Mrs:                 pair.Key,
			CorNo:               pair.StationID,
			Remain:              pair.Remain,
			PreviousRemain:      pair.PreviousRemain,
			StampRemain:         pair.RemainStamp,
			StampPreviousRemain: pair.PreviousRemainStamp,
		})
	}
	reading := event.Reading
	return json.Marshal(readingBody{
		DataKey:   reading.Key,
		DataValue: valueText(reading.Value),
		StampTime: reading.Stamp,
		Status:    reading.Status,
	})
}

// valueText renders a notification value the way it is stored.
func valueText(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
